package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
	"dailyalchemy/internal/planner"
	"dailyalchemy/internal/repository"
)

func newPathService(t *testing.T) (*PathService, *repository.CombinationRepository) {
	db := newTestDB(t)
	return NewPathService(db, planner.New(nil, logger.NewNop()), logger.NewNop()), repository.NewCombinationRepository(db)
}

func lavaPath() models.Path {
	return models.Path{Steps: []models.Step{
		{A: "fire", B: "earth", ResultName: "Stone", ResultEmoji: "🪨"},
		{A: "fire", B: "stone", ResultName: "Lava", ResultEmoji: "🌋"},
	}}
}

func TestPathGenerate(t *testing.T) {
	svc, repo := newPathService(t)
	ctx := context.Background()
	_, err := repo.InsertIfAbsent(ctx, &models.CombinationRecord{
		Key: "earth|water", ElementA: "earth", ElementB: "water", ResultName: "mud", ResultEmoji: "🟫",
	})
	require.NoError(t, err)

	res, err := svc.Generate(ctx, "Mud", 0)
	require.NoError(t, err)
	require.NotEmpty(t, res.Paths)
	assert.Equal(t, []models.Step{{A: "earth", B: "water", ResultName: "Mud", ResultEmoji: "🟫"}}, res.Paths[0].Steps)
	assert.Equal(t, 1, res.ExistingCombinationsCount)

	_, err = svc.Generate(ctx, "Obsidian", 3)
	assert.True(t, errors.Is(err, apperr.ErrPathUnreachable))

	_, err = svc.Generate(ctx, "", 3)
	assert.True(t, errors.Is(err, apperr.ErrInvalidName))
}

func TestSavePathIdempotent(t *testing.T) {
	svc, repo := newPathService(t)
	ctx := context.Background()
	target := models.Element{Name: "Lava", Emoji: "🌋"}

	first, err := svc.SavePath(ctx, target, lavaPath())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)
	assert.Zero(t, first.Skipped)
	assert.Empty(t, first.Conflicts)
	assert.Empty(t, first.Errors)

	before, err := repo.ListAll(ctx, true)
	require.NoError(t, err)

	second, err := svc.SavePath(ctx, target, lavaPath())
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 2, second.Skipped)

	after, err := repo.ListAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	rec, err := repo.LookupByKey(ctx, "earth|fire")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Source.AdminDefined)
	assert.True(t, rec.Source.OracleGenerated)
	assert.Nil(t, rec.DiscovererUserID)
}

func TestSavePathConflict(t *testing.T) {
	svc, repo := newPathService(t)
	ctx := context.Background()
	_, err := repo.InsertIfAbsent(ctx, &models.CombinationRecord{
		Key: "earth|fire", ElementA: "earth", ElementB: "fire", ResultName: "Dust", ResultEmoji: "🌫️",
	})
	require.NoError(t, err)

	res, err := svc.SavePath(ctx, models.Element{Name: "Lava", Emoji: "🌋"}, lavaPath())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, models.PathConflict{Key: "earth|fire", Existing: "Dust", Requested: "Stone"}, res.Conflicts[0])

	rec, err := repo.LookupByKey(ctx, "earth|fire")
	require.NoError(t, err)
	assert.Equal(t, "Dust", rec.ResultName, "existing record must not be overwritten")
}

func TestSavePathPlaceholder(t *testing.T) {
	svc, repo := newPathService(t)
	ctx := context.Background()
	path := models.Path{Steps: []models.Step{{A: "fire", B: "earth", ResultName: "Stone", ResultEmoji: "🪨"}}}

	res, err := svc.SavePath(ctx, models.Element{Name: "Obsidian", Emoji: "⬛"}, path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)

	visible, err := repo.LookupByResult(ctx, "obsidian")
	require.NoError(t, err)
	assert.Empty(t, visible, "placeholders are hidden from user-facing reads")

	all, err := repo.LookupByResultIncludingReserved(ctx, "obsidian")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "_admin_obsidian", all[0].Key)
	assert.True(t, all[0].Reserved)

	again, err := svc.SavePath(ctx, models.Element{Name: "Obsidian", Emoji: "⬛"}, path)
	require.NoError(t, err)
	assert.Zero(t, again.Created)
	assert.Equal(t, 1, again.Skipped)
}

func TestSavePathPlaceholdersForSimilarNames(t *testing.T) {
	svc, repo := newPathService(t)
	ctx := context.Background()
	broken := models.Path{Steps: []models.Step{{A: "", B: "earth", ResultName: "Cone", ResultEmoji: "🍦"}}}

	tests := []struct {
		name   string
		target string
		lookup string
	}{
		{name: "spaced", target: "Ice Cream", lookup: "ice cream"},
		{name: "hyphenated", target: "Ice-Cream", lookup: "ice-cream"},
		{name: "underscored", target: "Ice_Cream", lookup: "ice_cream"},
		{name: "symbols only", target: "🍨", lookup: "🍨"},
		{name: "other symbols", target: "🍧", lookup: "🍧"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.SavePath(ctx, models.Element{Name: tt.target, Emoji: "🍨"}, broken)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Created)
			require.Len(t, res.Errors, 1)
			assert.Equal(t, 0, res.Errors[0].Index)

			all, err := repo.LookupByResultIncludingReserved(ctx, tt.lookup)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.True(t, all[0].Reserved)
			assert.Equal(t, tt.target, all[0].ResultName)
		})
	}
}

func TestSavePathReportsTakenPlaceholderKey(t *testing.T) {
	svc, repo := newPathService(t)
	ctx := context.Background()

	key, err := normalize.AdminKey("Ice Cream")
	require.NoError(t, err)
	_, err = repo.InsertIfAbsent(ctx, &models.CombinationRecord{
		Key:         key.String(),
		ElementA:    normalize.ReservedOperandA,
		ElementB:    normalize.ReservedOperandB,
		ResultName:  "Sundae",
		ResultEmoji: "🍨",
		Source:      models.Source{AdminDefined: true},
		Reserved:    true,
	})
	require.NoError(t, err)

	path := models.Path{Steps: []models.Step{{A: "fire", B: "earth", ResultName: "Stone", ResultEmoji: "🪨"}}}
	res, err := svc.SavePath(ctx, models.Element{Name: "Ice Cream", Emoji: "🍦"}, path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, -1, res.Errors[0].Index)
	assert.Contains(t, res.Errors[0].Message, "Sundae")
}

func TestSavePathCanonicalizesEmoji(t *testing.T) {
	svc, repo := newPathService(t)
	ctx := context.Background()
	_, err := repo.InsertIfAbsent(ctx, &models.CombinationRecord{
		Key: "earth|wind", ElementA: "earth", ElementB: "wind", ResultName: "Stone", ResultEmoji: "🪨",
	})
	require.NoError(t, err)

	path := models.Path{Steps: []models.Step{{A: "fire", B: "earth", ResultName: "stone", ResultEmoji: "🗿"}}}
	res, err := svc.SavePath(ctx, models.Element{Name: "Stone", Emoji: "🗿"}, path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	rec, err := repo.LookupByKey(ctx, "earth|fire")
	require.NoError(t, err)
	assert.Equal(t, "🪨", rec.ResultEmoji)
}

func TestSavePathStepErrors(t *testing.T) {
	svc, _ := newPathService(t)
	ctx := context.Background()
	path := models.Path{Steps: []models.Step{
		{A: "", B: "earth", ResultName: "Stone", ResultEmoji: "🪨"},
		{A: "earth", B: "earth", ResultName: "fire", ResultEmoji: "🔥"},
		{A: "fire", B: "earth", ResultName: "Stone", ResultEmoji: "🪨"},
	}}

	res, err := svc.SavePath(ctx, models.Element{Name: "Stone", Emoji: "🪨"}, path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 0, res.Errors[0].Index)
	assert.Equal(t, 1, res.Errors[1].Index)

	_, err = svc.SavePath(ctx, models.Element{Name: "water", Emoji: "💧"}, path)
	assert.True(t, errors.Is(err, apperr.ErrInvalidName))

	_, err = svc.SavePath(ctx, models.Element{Name: "Stone", Emoji: "🪨"}, models.Path{})
	assert.True(t, errors.Is(err, apperr.ErrInvalidRequest))
}
