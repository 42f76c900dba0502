package citations

import (
	"reflect"
	"testing"
)

func TestExtract_SingleCitations(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Citation
	}{
		{
			name: "full federal case",
			text: "Brown v. Board of Education, 347 U.S. 483 (1954)",
			want: Case{
				Raw:       "Brown v. Board of Education, 347 U.S. 483 (1954)",
				Plaintiff: "Brown", Defendant: "Board of Education",
				Volume: "347", Reporter: "U.S.", Page: "483", Year: "1954",
			},
		},
		{
			name: "us code section",
			text: "18 U.S.C. § 1030",
			want: Statute{Raw: "18 U.S.C. § 1030", Title: "18", Code: "U.S.C.", Section: "1030"},
		},
		{
			name: "signal word and pin cite",
			text: "See Miranda v. Arizona, 384 U.S. 436, 444 (1966)",
			want: Case{
				Raw:       "See Miranda v. Arizona, 384 U.S. 436, 444 (1966)",
				Plaintiff: "Miranda", Defendant: "Arizona",
				Volume: "384", Reporter: "U.S.", Page: "436", Year: "1966",
			},
		},
		{
			name: "supra with pin",
			text: "Brown v. Board of Education, supra, at 495",
			want: Case{
				Raw:       "Brown v. Board of Education, supra, at 495",
				Plaintiff: "Brown", Defendant: "Board of Education", Page: "495",
			},
		},
		{
			name: "supra without pin",
			text: "Terry v. Ohio, supra",
			want: Case{Raw: "Terry v. Ohio, supra", Plaintiff: "Terry", Defendant: "Ohio"},
		},
		{
			name: "id with pin",
			text: "Id. at 350",
			want: Case{Raw: "Id. at 350", Page: "350"},
		},
		{
			name: "state reporter",
			text: "Palsgraf v. Long Island Railroad Co., 162 N.E. 99 (N.Y. 1928)",
			want: Case{
				Raw:       "Palsgraf v. Long Island Railroad Co., 162 N.E. 99 (N.Y. 1928)",
				Plaintiff: "Palsgraf", Defendant: "Long Island Railroad Co.",
				Volume: "162", Reporter: "N.E.", Page: "99", Year: "1928",
			},
		},
		{
			name: "neutral citation with parties",
			text: "Lee v Ashers Baking Co Ltd [2018] UKSC 49",
			want: Case{
				Raw:       "Lee v Ashers Baking Co Ltd [2018] UKSC 49",
				Plaintiff: "Lee", Defendant: "Ashers Baking Co Ltd",
				Year: "2018", Reporter: "UKSC", Page: "49",
			},
		},
		{
			name: "bare neutral citation",
			text: "[2019] EWCA Civ 123",
			want: Case{Raw: "[2019] EWCA Civ 123", Year: "2019", Reporter: "EWCA Civ", Page: "123"},
		},
		{
			name: "annotated us code",
			text: "42 U.S.C.A. § 1988",
			want: Statute{Raw: "42 U.S.C.A. § 1988", Title: "42", Code: "U.S.C.A.", Section: "1988"},
		},
		{
			name: "subsection chain",
			text: "18 U.S.C. § 924(c)(1)(A)",
			want: Statute{Raw: "18 U.S.C. § 924(c)(1)(A)", Title: "18", Code: "U.S.C.", Section: "924(c)(1)(A)"},
		},
		{
			name: "section range",
			text: "29 U.S.C. §§ 201-219",
			want: Statute{Raw: "29 U.S.C. §§ 201-219", Title: "29", Code: "U.S.C.", Section: "201-219"},
		},
		{
			name: "sentence-final period stays out of the section",
			text: "The claim arises under 18 U.S.C. § 1030.",
			want: Statute{Raw: "18 U.S.C. § 1030", Title: "18", Code: "U.S.C.", Section: "1030"},
		},
		{
			name: "cfr section",
			text: "29 C.F.R. § 1604.11",
			want: Regulation{Raw: "29 C.F.R. § 1604.11", Title: "29", Source: "C.F.R.", Section: "1604.11"},
		},
		{
			name: "public law",
			text: "Pub. L. No. 116-136",
			want: Statute{Raw: "Pub. L. No. 116-136", Title: "116", Code: "Pub. L.", Section: "136"},
		},
		{
			name: "state code",
			text: "Cal. Penal Code § 187(a)",
			want: Statute{Raw: "Cal. Penal Code § 187(a)", Code: "Cal. Penal Code", Section: "187(a)"},
		},
		{
			name: "annotated state code",
			text: "Tex. Fam. Code Ann. § 6.001",
			want: Statute{Raw: "Tex. Fam. Code Ann. § 6.001", Code: "Tex. Fam. Code Ann.", Section: "6.001"},
		},
		{
			name: "federal register",
			text: "86 Fed. Reg. 7037",
			want: Regulation{Raw: "86 Fed. Reg. 7037", Volume: "86", Source: "Fed. Reg.", Page: "7037"},
		},
		{
			name: "administrative decision",
			text: "Matter of Acosta, 19 I. & N. Dec. 211 (BIA 1985)",
			want: Case{
				Raw:       "Matter of Acosta, 19 I. & N. Dec. 211 (BIA 1985)",
				Plaintiff: "Matter of Acosta",
				Volume:    "19", Reporter: "I. & N. Dec.", Page: "211", Year: "1985",
			},
		},
		{
			name: "administrative decision without year",
			text: "In re Fought, 28 I&N Dec. 123",
			want: Case{
				Raw:       "In re Fought, 28 I&N Dec. 123",
				Plaintiff: "In re Fought",
				Volume:    "28", Reporter: "I&N Dec.", Page: "123",
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.text)
			if len(got) != 1 {
				t.Fatalf("Extract(%q) returned %d citations, want 1: %#v", tc.text, len(got), got)
			}
			if !reflect.DeepEqual(got[0], tc.want) {
				t.Fatalf("Extract(%q) = %#v, want %#v", tc.text, got[0], tc.want)
			}
		})
	}
}

func TestExtract_BatteryOrder(t *testing.T) {
	const brief = `See Miranda v. Arizona, 384 U.S. 436, 444 (1966).
Dickerson v. United States, 530 U.S. 428 (2000) reaffirmed the rule; see also Miranda v. Arizona, supra, at 448.
Id. at 450.
Palsgraf v. Long Island Railroad Co., 162 N.E. 99 (N.Y. 1928) settled duty.
Compare Lee v Ashers Baking Co Ltd [2018] UKSC 49.
Liability rests on 42 U.S.C. § 1983 and 29 C.F.R. § 1604.11.
See also Pub. L. No. 116-136 and Cal. Penal Code § 187(a).
Notice at 86 Fed. Reg. 7037 (Feb. 1, 2021).
Matter of Acosta, 19 I. & N. Dec. 211 (BIA 1985).`

	want := []Citation{
		Case{Raw: "See Miranda v. Arizona, 384 U.S. 436, 444 (1966)",
			Plaintiff: "Miranda", Defendant: "Arizona", Volume: "384", Reporter: "U.S.", Page: "436", Year: "1966"},
		Case{Raw: "Dickerson v. United States, 530 U.S. 428 (2000)",
			Plaintiff: "Dickerson", Defendant: "United States", Volume: "530", Reporter: "U.S.", Page: "428", Year: "2000"},
		Case{Raw: "Miranda v. Arizona, supra, at 448",
			Plaintiff: "Miranda", Defendant: "Arizona", Page: "448"},
		Case{Raw: "Id. at 450", Page: "450"},
		Case{Raw: "Palsgraf v. Long Island Railroad Co., 162 N.E. 99 (N.Y. 1928)",
			Plaintiff: "Palsgraf", Defendant: "Long Island Railroad Co.", Volume: "162", Reporter: "N.E.", Page: "99", Year: "1928"},
		Case{Raw: "Compare Lee v Ashers Baking Co Ltd [2018] UKSC 49",
			Plaintiff: "Lee", Defendant: "Ashers Baking Co Ltd", Year: "2018", Reporter: "UKSC", Page: "49"},
		Statute{Raw: "42 U.S.C. § 1983", Title: "42", Code: "U.S.C.", Section: "1983"},
		Regulation{Raw: "29 C.F.R. § 1604.11", Title: "29", Source: "C.F.R.", Section: "1604.11"},
		Statute{Raw: "Pub. L. No. 116-136", Title: "116", Code: "Pub. L.", Section: "136"},
		Statute{Raw: "Cal. Penal Code § 187(a)", Code: "Cal. Penal Code", Section: "187(a)"},
		Regulation{Raw: "86 Fed. Reg. 7037", Volume: "86", Source: "Fed. Reg.", Page: "7037"},
		Case{Raw: "Matter of Acosta, 19 I. & N. Dec. 211 (BIA 1985)",
			Plaintiff: "Matter of Acosta", Volume: "19", Reporter: "I. & N. Dec.", Page: "211", Year: "1985"},
	}

	got := Extract(brief)
	if len(got) != len(want) {
		t.Fatalf("Extract returned %d citations, want %d: %#v", len(got), len(want), got)
	}
	for i := range want {
		if !reflect.DeepEqual(got[i], want[i]) {
			t.Errorf("citation %d = %#v, want %#v", i, got[i], want[i])
		}
	}
}

func TestExtract_KeepsDuplicates(t *testing.T) {
	got := Extract("42 U.S.C. § 1983 bars the claim. 42 U.S.C. § 1983 also supplies the remedy.")
	if len(got) != 2 {
		t.Fatalf("Extract returned %d citations, want 2: %#v", len(got), got)
	}
	if !reflect.DeepEqual(got[0], got[1]) {
		t.Fatalf("duplicate occurrences diverged: %#v vs %#v", got[0], got[1])
	}
}

func TestExtract_NoMatches(t *testing.T) {
	for _, text := range []string{
		"",
		"The court held that damages were appropriate under the circumstances.",
		"Id.",
		"Section 12 of the lease controls here.",
	} {
		if got := Extract(text); len(got) != 0 {
			t.Errorf("Extract(%q) = %#v, want none", text, got)
		}
	}
}

func TestKindAndMatched(t *testing.T) {
	tests := []struct {
		c    Citation
		kind Kind
	}{
		{Case{Raw: "Id. at 1"}, KindCase},
		{Statute{Raw: "18 U.S.C. § 1030"}, KindStatute},
		{Regulation{Raw: "86 Fed. Reg. 7037"}, KindRegulation},
	}
	for _, tc := range tests {
		if tc.c.Kind() != tc.kind {
			t.Errorf("Kind() = %q, want %q", tc.c.Kind(), tc.kind)
		}
		if tc.c.Matched() == "" {
			t.Errorf("Matched() empty for %#v", tc.c)
		}
	}
}
