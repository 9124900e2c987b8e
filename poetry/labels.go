// Package poetry holds the closed label vocabularies used by the poetry
// classification tasks, and the bookkeeping that maps those labels onto
// reserved tokenizer vocabulary slots.
package poetry

// AlliterationLevels are the categorical strengths of alliteration in a line,
// ordered from weakest to strongest.
var AlliterationLevels = []string{"low", "medium", "high"}

// Meters are the metrical pattern labels for a verse.
var Meters = []string{
	"alexandrine",
	"amphibrach",
	"anapaest",
	"dactyl",
	"iambus",
	"trochee",
	"other",
}

// QuatrainRhymeSchemes are the end-rhyme patterns of a four-line stanza:
// the 15 set partitions of 4 elements, in canonical form.
var QuatrainRhymeSchemes = []string{
	"AAAA",
	"AAAB",
	"AABA",
	"AABB",
	"AABC",
	"ABAA",
	"ABAB",
	"ABAC",
	"ABBA",
	"ABBB",
	"ABBC",
	"ABCA",
	"ABCB",
	"ABCC",
	"ABCD",
}

// LabelsForTask returns the ordered label set for a task name ("meter",
// "rhyme" or "alliteration"), or nil if the task is unknown.
func LabelsForTask(task string) []string {
	switch task {
	case "meter":
		return Meters
	case "rhyme":
		return QuatrainRhymeSchemes
	case "alliteration":
		return AlliterationLevels
	default:
		return nil
	}
}
