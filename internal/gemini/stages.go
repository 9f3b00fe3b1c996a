package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/Playroom/internal/domain"
)

// Имена операций (метки метрик и спанов).
const (
	OpExtract = "extract_inventory"
	OpAnalyze = "analyze_skills"
	OpQuest   = "generate_quest"
	OpSafety  = "check_safety"
)

const systemPrompt = `You are a child development specialist reviewing photos of children's toys.
Answer strictly with JSON matching the provided schema. Do not add commentary.`

// ExtractInventory определяет категории игрушек на изображении.
func (c *Client) ExtractInventory(ctx context.Context, image []byte, mimeType string) (*domain.ToyInventory, error) {
	var inv domain.ToyInventory
	err := c.generate(ctx, call{
		op:     OpExtract,
		system: systemPrompt,
		parts: []part{
			imagePart(image, mimeType),
			textPart(extractPrompt),
		},
		schema:   inventorySchema,
		out:      &inv,
		validate: func() error { return validateInventory(inv) },
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// AnalyzeSkills оценивает навыки и строит roadmap из трёх рекомендаций.
func (c *Client) AnalyzeSkills(ctx context.Context, inv domain.ToyInventory, age int) (*domain.SkillAnalysis, error) {
	input, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal inventory: %w", OpAnalyze, err)
	}

	var analysis domain.SkillAnalysis
	err = c.generate(ctx, call{
		op:       OpAnalyze,
		system:   systemPrompt,
		parts:    []part{textPart(fmt.Sprintf(analyzePrompt, age, input))},
		schema:   analysisSchema,
		out:      &analysis,
		validate: func() error { return analysis.Validate() },
	})
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

// GenerateQuest придумывает творческое задание из найденных предметов.
func (c *Client) GenerateQuest(ctx context.Context, inv domain.ToyInventory, age int) (*domain.Quest, error) {
	input, err := json.Marshal(inv.Categories())
	if err != nil {
		return nil, fmt.Errorf("%s: marshal categories: %w", OpQuest, err)
	}

	var quest domain.Quest
	err = c.generate(ctx, call{
		op:       OpQuest,
		system:   systemPrompt,
		parts:    []part{textPart(fmt.Sprintf(questPrompt, age, input))},
		schema:   questSchema,
		out:      &quest,
		validate: func() error { return quest.Validate() },
	})
	if err != nil {
		return nil, err
	}
	return &quest, nil
}

// CheckSafety проверяет рекомендации roadmap на соответствие возрасту.
func (c *Client) CheckSafety(ctx context.Context, roadmap []domain.RoadmapItem, age int) (*domain.SafetyCheck, error) {
	input, err := json.Marshal(roadmap)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal roadmap: %w", OpSafety, err)
	}

	var check domain.SafetyCheck
	err = c.generate(ctx, call{
		op:       OpSafety,
		system:   systemPrompt,
		parts:    []part{textPart(fmt.Sprintf(safetyPrompt, age, input))},
		schema:   safetySchema,
		out:      &check,
		validate: func() error { return validateSafety(check, roadmap) },
	})
	if err != nil {
		return nil, err
	}
	return &check, nil
}

func validateInventory(inv domain.ToyInventory) error {
	for i, item := range inv.Items {
		if item.Category == "" {
			return fmt.Errorf("items[%d]: empty category", i)
		}
		if item.Count < 0 {
			return fmt.Errorf("items[%d]: negative count", i)
		}
		for j, box := range item.Boxes {
			for _, v := range box {
				if v < 0 || v > 1000 {
					return fmt.Errorf("items[%d].boxes[%d]: coordinate out of range: %d", i, j, v)
				}
			}
		}
	}
	return nil
}

// validateSafety требует ровно один вердикт на элемент roadmap,
// в том же порядке и с тем же timeframe.
func validateSafety(check domain.SafetyCheck, roadmap []domain.RoadmapItem) error {
	if len(check.Items) != len(roadmap) {
		return fmt.Errorf("expected %d safety items, got %d", len(roadmap), len(check.Items))
	}
	for i, item := range check.Items {
		if item.Timeframe != roadmap[i].Timeframe {
			return fmt.Errorf("items[%d]: timeframe %q, want %q", i, item.Timeframe, roadmap[i].Timeframe)
		}
		switch item.Decision {
		case domain.DecisionApproved, domain.DecisionSubstituted:
		default:
			return fmt.Errorf("items[%d]: unknown decision %q", i, item.Decision)
		}
	}
	return nil
}
