package domain

import (
	"fmt"
	"slices"
)

// Timeframe — горизонт рекомендации в roadmap.
type Timeframe string

const (
	TimeframeNow     Timeframe = "now"
	Timeframe3Months Timeframe = "3_months"
	Timeframe6Months Timeframe = "6_months"
)

// RoadmapTimeframes — обязательный порядок timeframe'ов в roadmap.
var RoadmapTimeframes = []Timeframe{TimeframeNow, Timeframe3Months, Timeframe6Months}

// RoadmapSize — количество элементов roadmap.
const RoadmapSize = 3

// Decision — вердикт проверки безопасности рекомендации.
type Decision string

const (
	DecisionApproved    Decision = "approved"
	DecisionSubstituted Decision = "substituted"
)

// BoundingBox — нормализованная рамка [ymin, xmin, ymax, xmax] в диапазоне 0..1000.
type BoundingBox [4]int

// InventoryItem — категория игрушек, найденная на изображении.
type InventoryItem struct {
	Category string        `json:"category"`
	Count    int           `json:"count"`
	Boxes    []BoundingBox `json:"boxes,omitempty"`
}

// ToyInventory — результат Stage1 (extraction).
type ToyInventory struct {
	Items []InventoryItem `json:"items"`
}

// Categories возвращает список категорий в порядке обнаружения.
func (inv ToyInventory) Categories() []string {
	out := make([]string, 0, len(inv.Items))
	for _, it := range inv.Items {
		out = append(out, it.Category)
	}
	return out
}

// SkillScores — шесть оценок развития навыков (0..100).
type SkillScores struct {
	FineMotor       int `json:"fine_motor"`
	GrossMotor      int `json:"gross_motor"`
	Cognitive       int `json:"cognitive"`
	Creative        int `json:"creative"`
	SocialEmotional int `json:"social_emotional"`
	Language        int `json:"language"`
}

// Named возвращает оценки в фиксированном порядке с именами.
func (s SkillScores) Named() []NamedScore {
	return []NamedScore{
		{"fine_motor", s.FineMotor},
		{"gross_motor", s.GrossMotor},
		{"cognitive", s.Cognitive},
		{"creative", s.Creative},
		{"social_emotional", s.SocialEmotional},
		{"language", s.Language},
	}
}

// NamedScore — оценка навыка с именем.
type NamedScore struct {
	Skill string `json:"skill"`
	Score int    `json:"score"`
}

// RoadmapItem — рекомендация Stage2a на определённый горизонт.
type RoadmapItem struct {
	Timeframe      Timeframe `json:"timeframe"`
	Priority       int       `json:"priority"`
	Title          string    `json:"title"`
	Recommendation string    `json:"recommendation"`
	Skill          string    `json:"skill,omitempty"`
}

// SkillAnalysis — результат Stage2a (skill analysis).
type SkillAnalysis struct {
	Summary string        `json:"summary"`
	Scores  SkillScores   `json:"skill_scores"`
	Roadmap []RoadmapItem `json:"roadmap"`
}

// Validate проверяет инварианты анализа: шесть оценок в 0..100,
// ровно три элемента roadmap с разными timeframe и приоритетами 1..3.
func (a SkillAnalysis) Validate() error {
	for _, ns := range a.Scores.Named() {
		if ns.Score < 0 || ns.Score > 100 {
			return fmt.Errorf("score %s out of range: %d", ns.Skill, ns.Score)
		}
	}
	if len(a.Roadmap) != RoadmapSize {
		return fmt.Errorf("roadmap must have %d items, got %d", RoadmapSize, len(a.Roadmap))
	}
	seen := make(map[Timeframe]bool, RoadmapSize)
	for i, item := range a.Roadmap {
		if !slices.Contains(RoadmapTimeframes, item.Timeframe) {
			return fmt.Errorf("roadmap[%d]: unknown timeframe %q", i, item.Timeframe)
		}
		if seen[item.Timeframe] {
			return fmt.Errorf("roadmap[%d]: duplicate timeframe %q", i, item.Timeframe)
		}
		seen[item.Timeframe] = true
		if item.Priority < 1 || item.Priority > RoadmapSize {
			return fmt.Errorf("roadmap[%d]: priority out of range: %d", i, item.Priority)
		}
	}
	return nil
}

// Quest — творческое задание Stage2b.
type Quest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Items       []string `json:"items"`
}

// Validate проверяет, что задание использует от 2 до 4 найденных предметов.
func (q Quest) Validate() error {
	if n := len(q.Items); n < 2 || n > 4 {
		return fmt.Errorf("quest must reference 2-4 items, got %d", n)
	}
	return nil
}

// SafetyItem — вердикт Stage3 для одного элемента roadmap.
type SafetyItem struct {
	Timeframe           Timeframe `json:"timeframe"`
	Decision            Decision  `json:"decision"`
	FinalRecommendation string    `json:"final_recommendation"`
	Rationale           string    `json:"safety_rationale"`
}

// SafetyCheck — результат Stage3 (safety check).
type SafetyCheck struct {
	Items []SafetyItem `json:"items"`
}

// MergedRoadmapItem — элемент roadmap после объединения с вердиктом безопасности.
type MergedRoadmapItem struct {
	RoadmapItem
	Decision            Decision `json:"decision"`
	FinalRecommendation string   `json:"final_recommendation"`
	SafetyRationale     string   `json:"safety_rationale"`
}

// Payload — итоговый результат обработки скана (колонка result).
type Payload struct {
	StatusSummary  string              `json:"status_summary"`
	SkillScores    SkillScores         `json:"skill_scores"`
	MergedRoadmap  []MergedRoadmapItem `json:"merged_roadmap"`
	InventoryItems []InventoryItem     `json:"inventory_items"`
	Quest          Quest               `json:"quest"`
	CareerPaths    map[string][]string `json:"career_paths,omitempty"`
}
