package merge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Playroom/internal/domain"
)

func testAnalysis() domain.SkillAnalysis {
	return domain.SkillAnalysis{
		Summary: "Mostly construction toys.",
		Scores: domain.SkillScores{
			FineMotor: 85, GrossMotor: 20, Cognitive: 60,
			Creative: 70, SocialEmotional: 40, Language: 15,
		},
		Roadmap: []domain.RoadmapItem{
			{Timeframe: domain.TimeframeNow, Priority: 1, Title: "Ball", Recommendation: "Add a soft ball"},
			{Timeframe: domain.Timeframe3Months, Priority: 2, Title: "Books", Recommendation: "Picture books"},
			{Timeframe: domain.Timeframe6Months, Priority: 3, Title: "Scissors", Recommendation: "Safety scissors"},
		},
	}
}

func TestMerge_DefaultSubstitution(t *testing.T) {
	safety := domain.SafetyCheck{Items: []domain.SafetyItem{
		{Timeframe: domain.TimeframeNow, Decision: domain.DecisionApproved, FinalRecommendation: "Add a soft ball"},
		{Timeframe: domain.Timeframe3Months, Decision: domain.DecisionSubstituted, FinalRecommendation: "Board books", Rationale: "pages too thin"},
	}}

	p := Merge(domain.ToyInventory{}, domain.Quest{}, testAnalysis(), safety, domain.Scan{})

	if len(p.MergedRoadmap) != 3 {
		t.Fatalf("merged roadmap len = %d, want 3", len(p.MergedRoadmap))
	}

	second := p.MergedRoadmap[1]
	if second.Decision != domain.DecisionSubstituted || second.FinalRecommendation != "Board books" || second.SafetyRationale != "pages too thin" {
		t.Errorf("second item = %+v", second)
	}

	third := p.MergedRoadmap[2]
	if third.Decision != domain.DecisionApproved {
		t.Errorf("third decision = %s, want approved", third.Decision)
	}
	if third.FinalRecommendation != "Safety scissors" {
		t.Errorf("third final recommendation = %q, want original", third.FinalRecommendation)
	}
	if third.SafetyRationale != "" {
		t.Errorf("third rationale = %q, want empty", third.SafetyRationale)
	}
	if third.Timeframe != domain.Timeframe6Months || third.Title != "Scissors" {
		t.Errorf("third roadmap fields lost: %+v", third.RoadmapItem)
	}
}

func TestMerge_NoSafetyAtAll(t *testing.T) {
	p := Merge(domain.ToyInventory{}, domain.Quest{}, testAnalysis(), domain.SafetyCheck{}, domain.Scan{})
	for i, item := range p.MergedRoadmap {
		if item.Decision != domain.DecisionApproved || item.FinalRecommendation != item.Recommendation {
			t.Errorf("item %d not defaulted: %+v", i, item)
		}
	}
}

func TestMerge_Payload(t *testing.T) {
	inv := domain.ToyInventory{Items: []domain.InventoryItem{{Category: "blocks", Count: 12}}}
	quest := domain.Quest{Title: "Tower", Items: []string{"blocks", "cars"}}

	p := Merge(inv, quest, testAnalysis(), domain.SafetyCheck{}, domain.Scan{})

	if len(p.InventoryItems) != 1 || p.InventoryItems[0].Category != "blocks" {
		t.Errorf("inventory = %+v", p.InventoryItems)
	}
	if p.Quest.Title != "Tower" {
		t.Errorf("quest = %+v", p.Quest)
	}
	if p.SkillScores.FineMotor != 85 {
		t.Errorf("scores = %+v", p.SkillScores)
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize(testAnalysis())
	if !strings.Contains(got, "Strongest area: fine motor (85)") {
		t.Errorf("summary %q missing strongest", got)
	}
	if !strings.Contains(got, "Needs attention: language (15)") {
		t.Errorf("summary %q missing weakest", got)
	}
	if !strings.HasSuffix(got, "Mostly construction toys.") {
		t.Errorf("summary %q missing model summary", got)
	}
}

// --- Writer ---

type fakeCompleter struct {
	err     error
	written map[uuid.UUID]domain.Payload
}

func (f *fakeCompleter) Complete(_ context.Context, id uuid.UUID, payload domain.Payload) error {
	if f.err != nil {
		return f.err
	}
	if f.written == nil {
		f.written = make(map[uuid.UUID]domain.Payload)
	}
	f.written[id] = payload
	return nil
}

func TestWriter_Write(t *testing.T) {
	store := &fakeCompleter{}
	w := NewWriter(store, nil)
	scan := domain.Scan{ID: uuid.New()}

	if err := w.Write(context.Background(), scan, domain.Payload{StatusSummary: "ok"}); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if store.written[scan.ID].StatusSummary != "ok" {
		t.Error("payload not written")
	}
}

func TestWriter_WriteFailure(t *testing.T) {
	store := &fakeCompleter{err: errors.New("db down")}
	w := NewWriter(store, nil)

	err := w.Write(context.Background(), domain.Scan{ID: uuid.New()}, domain.Payload{})
	if !errors.Is(err, ErrMergeWrite) {
		t.Errorf("Write() error = %v, want ErrMergeWrite", err)
	}
	if len(store.written) != 0 {
		t.Error("nothing should be written on failure")
	}
}
