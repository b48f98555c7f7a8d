// Package models provides data model definitions for SetForge Core.
package models

// Session is the workout aggregate root. Exercises and sets reference it
// through the relation chain session <- session_exercise <- exercise_set.
type Session struct {
	ID        UUID   `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Notes     string `db:"notes" json:"notes,omitempty"`
	StartedAt int64  `db:"started_at" json:"started_at"`
	EndedAt   int64  `db:"ended_at" json:"ended_at,omitempty"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"` // ms since epoch, used for conflict checks
}

// TableName returns the table name for Session.
func (Session) TableName() string {
	return "sessions"
}

// SessionExercise is one exercise performed within a session.
type SessionExercise struct {
	ID         UUID   `db:"id" json:"id"`
	SessionID  UUID   `db:"session_id" json:"session_id"`
	ExerciseID string `db:"exercise_id" json:"exercise_id"` // catalog reference, not a queue relation
	Position   int    `db:"position" json:"position"`
	Notes      string `db:"notes" json:"notes,omitempty"`
}

// TableName returns the table name for SessionExercise.
func (SessionExercise) TableName() string {
	return "session_exercises"
}

// ExerciseSet is a single recorded set. Its payload carries only the owning
// session_exercise id; the session id is resolved through that exercise.
type ExerciseSet struct {
	ID                UUID    `db:"id" json:"id"`
	SessionExerciseID UUID    `db:"session_exercise_id" json:"session_exercise_id"`
	SetNumber         int     `db:"set_number" json:"set_number"`
	Reps              int     `db:"reps" json:"reps"`
	WeightKg          float64 `db:"weight_kg" json:"weight_kg"`
	RPE               float64 `db:"rpe" json:"rpe,omitempty"`
	CompletedAt       int64   `db:"completed_at" json:"completed_at"`
}

// TableName returns the table name for ExerciseSet.
func (ExerciseSet) TableName() string {
	return "exercise_sets"
}

// Template is a reusable workout plan. Template updates sync per item and
// never join a session group.
type Template struct {
	ID        UUID   `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Plan      string `db:"plan" json:"plan"` // JSON-encoded exercise plan
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Template.
func (Template) TableName() string {
	return "templates"
}
