package domain

// Profile holds the user's coaching profile. Extra carries the free-form
// JSON blob (name, activity level, gender) that the UI round-trips untouched.
type Profile struct {
	UserID       string
	Age          int
	Height       float64
	Weight       float64
	FitnessGoals string
	Email        string
	Extra        string
}

// LogEntry is one meal or workout log. Notes is the user's free text and is
// the only field that gets embedded; entries without notes are never indexed.
type LogEntry struct {
	UserID    string
	LogID     string
	Type      string
	Timestamp string
	Calories  float64
	Notes     string
}
