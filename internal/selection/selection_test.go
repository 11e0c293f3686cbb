package selection

import (
	"math/rand"
	"testing"
	"time"
)

var (
	day1 = time.Date(2020, 3, 17, 21, 24, 16, 0, time.UTC)
	day2 = day1.Add(24 * time.Hour)
)

func TestSelectPrimaryAliquots_SingleFile(t *testing.T) {
	samples := []SampleCriterion{
		{ID: "TARGET-20-PANLRE-14A-01D", SampleType: "Bone Marrow Normal"},
		{ID: "TARGET-20-PANLRE-09A-01D", SampleType: "Primary Blood Derived Cancer - Bone Marrow"},
		{ID: "TARGET-20-PANLRE-04A-01D", SampleType: "Recurrent Blood Derived Cancer - Bone Marrow"},
	}

	for i := 0; i < 10; i++ {
		shuffled := append([]SampleCriterion(nil), samples...)
		rand.New(rand.NewSource(int64(i))).Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got := SelectPrimaryAliquots([]Criterion{
			{ID: "file-1", CaseID: "case-1", Samples: shuffled, MAFCreationDate: day1},
		})
		want := Result{CaseID: "case-1", ID: "file-1", SampleID: "TARGET-20-PANLRE-09A-01D"}
		if len(got) != 1 || got["case-1"] != want {
			t.Fatalf("shuffle %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestSelectPrimaryAliquots_LatestFileWins(t *testing.T) {
	// The earlier file holds a tumor sample, the later one only a normal
	// sample. The creation date decides the file, the rank only decides the
	// sample inside it.
	criteria := []Criterion{
		{
			ID:     "hit-a",
			CaseID: "C1",
			Samples: []SampleCriterion{
				{ID: "A-normal", SampleType: "Blood Derived Normal"},
				{ID: "A-tumor", SampleType: "Primary Blood Derived Cancer - Bone Marrow"},
			},
			MAFCreationDate: day1,
		},
		{
			ID:              "hit-b",
			CaseID:          "C1",
			Samples:         []SampleCriterion{{ID: "B-normal", SampleType: "Bone Marrow Normal"}},
			MAFCreationDate: day2,
		},
	}

	got := SelectPrimaryAliquots(criteria)
	want := Result{CaseID: "C1", ID: "hit-b", SampleID: "B-normal"}
	if got["C1"] != want {
		t.Errorf("got %+v, want %+v", got["C1"], want)
	}
}

func TestSelectPrimaryAliquots_SameDateUsesRank(t *testing.T) {
	criteria := []Criterion{
		{
			ID:     "3609f3b5-3827-4114-9529-e3e8e1998902",
			CaseID: "06cd1d5f-9918-5db2-8c0d-3a0cedea5748",
			Samples: []SampleCriterion{
				{ID: "TARGET-20-PANLRE-04A-01D", SampleType: "Recurrent Blood Derived Cancer - Bone Marrow"},
				{ID: "TARGET-20-PANLRE-14A-01D", SampleType: "Bone Marrow Normal"},
			},
			MAFCreationDate: day1,
		},
		{
			ID:     "080765f4-349d-4646-954c-9673fa2033e6",
			CaseID: "06cd1d5f-9918-5db2-8c0d-3a0cedea5748",
			Samples: []SampleCriterion{
				{ID: "TARGET-20-PANLRE-09A-01D", SampleType: "Primary Blood Derived Cancer - Bone Marrow"},
				{ID: "TARGET-20-PANLRE-14A-01D", SampleType: "Bone Marrow Normal"},
			},
			MAFCreationDate: day1,
		},
	}

	got := SelectPrimaryAliquots(criteria)["06cd1d5f-9918-5db2-8c0d-3a0cedea5748"]
	if got.ID != "080765f4-349d-4646-954c-9673fa2033e6" || got.SampleID != "TARGET-20-PANLRE-09A-01D" {
		t.Errorf("got %+v, want the primary blood derived cancer aliquot", got)
	}
}

func TestSelectPrimaryAliquots_FullTieUsesFileID(t *testing.T) {
	criteria := []Criterion{
		{ID: "file-b", CaseID: "c", Samples: []SampleCriterion{{ID: "s2", SampleType: "Primary Tumor"}}, MAFCreationDate: day1},
		{ID: "file-a", CaseID: "c", Samples: []SampleCriterion{{ID: "s1", SampleType: "Primary Tumor"}}, MAFCreationDate: day1},
	}
	got := SelectPrimaryAliquots(criteria)["c"]
	if got.ID != "file-a" || got.SampleID != "s1" {
		t.Errorf("got %+v, want file-a/s1", got)
	}
}

func TestSelectPrimaryAliquots_ReproducibleUnderShuffle(t *testing.T) {
	var criteria []Criterion
	cases := []string{"c1", "c2", "c3", "c4"}
	types := []string{"Primary Tumor", "Solid Tissue Normal", "Metastatic", "Recurrent Tumor", "Unknown", ""}
	for i, caseID := range cases {
		for f := 0; f < 3; f++ {
			c := Criterion{
				ID:              caseID + "-file-" + string(rune('a'+f)),
				CaseID:          caseID,
				MAFCreationDate: day1.Add(time.Duration((i+f)%2) * time.Hour),
			}
			for s := 0; s < 3; s++ {
				c.Samples = append(c.Samples, SampleCriterion{
					ID:         c.ID + "-s" + string(rune('0'+s)),
					SampleType: types[(i+f+s)%len(types)],
				})
			}
			criteria = append(criteria, c)
		}
	}

	want := SelectPrimaryAliquots(criteria)
	if len(want) != len(cases) {
		t.Fatalf("got %d results, want %d", len(want), len(cases))
	}
	for seed := int64(0); seed < 25; seed++ {
		shuffled := append([]Criterion(nil), criteria...)
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		for i := range shuffled {
			samples := append([]SampleCriterion(nil), shuffled[i].Samples...)
			rng.Shuffle(len(samples), func(a, b int) { samples[a], samples[b] = samples[b], samples[a] })
			shuffled[i].Samples = samples
		}

		got := SelectPrimaryAliquots(shuffled)
		for caseID, w := range want {
			if got[caseID] != w {
				t.Fatalf("seed %d case %s: got %+v, want %+v", seed, caseID, got[caseID], w)
			}
		}
	}
}

func TestSelectPrimaryAliquots_ChosenRankIsMaximal(t *testing.T) {
	samples := []SampleCriterion{
		{ID: "a", SampleType: "Blood Derived Normal"},
		{ID: "b", SampleType: "Metastatic"},
		{ID: "c", SampleType: "something odd"},
		{ID: "d", SampleType: "Recurrent Tumor"},
		{ID: "e", SampleType: "Cell Lines"},
	}
	got := SelectPrimaryAliquots([]Criterion{{ID: "f", CaseID: "c", Samples: samples, MAFCreationDate: day1}})["c"]

	var chosen SampleCriterion
	for _, s := range samples {
		if s.ID == got.SampleID {
			chosen = s
		}
	}
	for _, s := range samples {
		if s.Rank() > chosen.Rank() {
			t.Errorf("chose %q (%s) but %q ranks %s", chosen.ID, chosen.Rank(), s.ID, s.Rank())
		}
	}
	if got.SampleID != "d" {
		t.Errorf("SampleID = %q, want d", got.SampleID)
	}
}

func TestSelectPrimaryAliquots_Unclassified(t *testing.T) {
	t.Run("all unclassified picks lowest id", func(t *testing.T) {
		got := SelectPrimaryAliquots([]Criterion{{
			ID:     "f",
			CaseID: "c",
			Samples: []SampleCriterion{
				{ID: "z", SampleType: "Not Reported"},
				{ID: "m", SampleType: ""},
				{ID: "q", SampleType: "Unknown"},
			},
		}})["c"]
		if got.SampleID != "m" {
			t.Errorf("SampleID = %q, want m", got.SampleID)
		}
	})

	t.Run("no samples", func(t *testing.T) {
		got := SelectPrimaryAliquots([]Criterion{{ID: "f", CaseID: "c"}})
		want := Result{CaseID: "c", ID: "f"}
		if got["c"] != want {
			t.Errorf("got %+v, want %+v", got["c"], want)
		}
	})

	t.Run("file with samples beats same-date file without", func(t *testing.T) {
		got := SelectPrimaryAliquots([]Criterion{
			{ID: "a", CaseID: "c", MAFCreationDate: day1},
			{ID: "b", CaseID: "c", MAFCreationDate: day1, Samples: []SampleCriterion{{ID: "s", SampleType: "Not Reported"}}},
		})["c"]
		if got.ID != "b" || got.SampleID != "s" {
			t.Errorf("got %+v, want b/s", got)
		}
	})
}

func TestSelectPrimaryAliquots_OneResultPerCase(t *testing.T) {
	criteria := []Criterion{
		{ID: "f1", CaseID: "X", Samples: []SampleCriterion{{ID: "x1", SampleType: "Primary Tumor"}}},
		{ID: "f2", CaseID: "Y", Samples: []SampleCriterion{{ID: "y1", SampleType: "Primary Tumor"}}},
		{ID: "f3", CaseID: "X", Samples: []SampleCriterion{{ID: "x2", SampleType: "Primary Tumor"}}},
	}
	got := Sorted(SelectPrimaryAliquots(criteria))
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].CaseID != "X" || got[1].CaseID != "Y" {
		t.Errorf("Sorted() order = %s, %s", got[0].CaseID, got[1].CaseID)
	}
	if got[0].ID != "f1" {
		t.Errorf("case X file = %q, want f1", got[0].ID)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		sampleType string
		tissueType string
		want       Rank
	}{
		{"Primary Tumor", "Tumor", RankPrimary},
		{"Primary Blood Derived Cancer - Bone Marrow", "Not Reported", RankPrimary},
		{"primary blood derived cancer -  peripheral blood", "", RankPrimary},
		{"Recurrent Blood Derived Cancer - Bone Marrow", "", RankRecurrent},
		{"Recurrent Tumor", "", RankRecurrent},
		{"Metastatic", "", RankMetastatic},
		{"Additional Metastatic", "", RankMetastatic},
		{"Blood Derived Cancer - Bone Marrow, Post-treatment", "", RankOtherTumor},
		{"Primary Xenograft Tissue", "", RankOtherTumor},
		{"Blood Derived Normal", "Normal", RankNormal},
		{"Bone Marrow Normal", "", RankNormal},
		{"Solid Tissue Normal", "", RankNormal},
		// keyword fallback
		{"Primary Something New", "", RankPrimary},
		{"Metastasis, Distant", "", RankMetastatic},
		{"Granulocytes Normal", "", RankNormal},
		// tissue type fallback
		{"Not Reported", "Tumor", RankOtherTumor},
		{"", "Normal", RankNormal},
		{"Unknown", "Unknown", RankUnclassified},
		{"", "", RankUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.sampleType+"/"+tt.tissueType, func(t *testing.T) {
			if got := Classify(tt.sampleType, tt.tissueType); got != tt.want {
				t.Errorf("Classify(%q, %q) = %s, want %s", tt.sampleType, tt.tissueType, got, tt.want)
			}
		})
	}
}

func TestRank_Order(t *testing.T) {
	order := []Rank{rankNoSamples, RankUnclassified, RankNormal, RankOtherTumor, RankMetastatic, RankRecurrent, RankPrimary}
	for i := 1; i < len(order); i++ {
		if order[i] <= order[i-1] {
			t.Errorf("%s should rank above %s", order[i], order[i-1])
		}
	}
}
