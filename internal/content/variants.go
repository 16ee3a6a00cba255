package content

import "time"

type NotesContent struct {
	Text        string       `json:"text" bson:"text"`
	Attachments []Attachment `json:"attachments,omitempty" bson:"attachments,omitempty" validate:"dive"`
	LastEdited  *time.Time   `json:"lastEdited,omitempty" bson:"lastEdited,omitempty"`
	Tags        []string     `json:"tags,omitempty" bson:"tags,omitempty" validate:"dive,notblank"`
	Version     int          `json:"version,omitempty" bson:"version,omitempty" validate:"gte=0"`
}

type Attachment struct {
	Type string `json:"type" bson:"type" validate:"oneof=image file link"`
	URL  string `json:"url" bson:"url" validate:"notblank"`
	Name string `json:"name" bson:"name"`
}

type QuizContent struct {
	Questions    []QuizQuestion `json:"questions" bson:"questions" validate:"dive"`
	Settings     QuizSettings   `json:"settings" bson:"settings"`
	Attempts     []QuizAttempt  `json:"attempts" bson:"attempts" validate:"dive"`
	LastAttempt  *time.Time     `json:"lastAttempt,omitempty" bson:"lastAttempt,omitempty"`
	AverageScore *float64       `json:"averageScore,omitempty" bson:"averageScore,omitempty"`
	TimeLimit    *int           `json:"timeLimit,omitempty" bson:"timeLimit,omitempty" validate:"omitempty,gte=0"`
}

type QuizQuestion struct {
	ID            string   `json:"id" bson:"id" validate:"notblank"`
	Question      string   `json:"question" bson:"question" validate:"notblank"`
	Type          string   `json:"type" bson:"type" validate:"oneof=multiple-choice true-false short-answer"`
	Options       []string `json:"options,omitempty" bson:"options,omitempty"`
	CorrectAnswer Answer   `json:"correctAnswer" bson:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty" bson:"explanation,omitempty"`
	Points        int      `json:"points" bson:"points" validate:"gte=0"`
}

type QuizSettings struct {
	ShuffleQuestions bool `json:"shuffleQuestions" bson:"shuffleQuestions"`
	ShowExplanations bool `json:"showExplanations" bson:"showExplanations"`
	PassingScore     int  `json:"passingScore" bson:"passingScore" validate:"gte=0,lte=100"`
	AllowRetries     bool `json:"allowRetries" bson:"allowRetries"`
	TimeLimit        *int `json:"timeLimit,omitempty" bson:"timeLimit,omitempty" validate:"omitempty,gte=0"`
}

type QuizAttempt struct {
	Date      time.Time    `json:"date" bson:"date"`
	Score     float64      `json:"score" bson:"score" validate:"gte=0"`
	TimeSpent int          `json:"timeSpent" bson:"timeSpent" validate:"gte=0"`
	Answers   []QuizAnswer `json:"answers" bson:"answers" validate:"dive"`
}

type QuizAnswer struct {
	QuestionID string `json:"questionId" bson:"questionId" validate:"notblank"`
	Answer     Answer `json:"answer" bson:"answer"`
	Correct    bool   `json:"correct" bson:"correct"`
}

type FlashcardsContent struct {
	Cards      []Flashcard       `json:"cards" bson:"cards" validate:"dive"`
	Settings   FlashcardSettings `json:"settings" bson:"settings"`
	Stats      FlashcardStats    `json:"stats" bson:"stats"`
	LastReview *time.Time        `json:"lastReview,omitempty" bson:"lastReview,omitempty"`
	NextReview *time.Time        `json:"nextReview,omitempty" bson:"nextReview,omitempty"`
}

type Flashcard struct {
	ID           string     `json:"id" bson:"id" validate:"notblank"`
	Front        string     `json:"front" bson:"front" validate:"notblank"`
	Back         string     `json:"back" bson:"back"`
	Hints        []string   `json:"hints,omitempty" bson:"hints,omitempty"`
	Difficulty   int        `json:"difficulty,omitempty" bson:"difficulty,omitempty" validate:"omitempty,min=1,max=5"`
	LastReviewed *time.Time `json:"lastReviewed,omitempty" bson:"lastReviewed,omitempty"`
	NextReview   *time.Time `json:"nextReview,omitempty" bson:"nextReview,omitempty"`
	Repetitions  int        `json:"repetitions" bson:"repetitions" validate:"gte=0"`
	EaseFactor   float64    `json:"easeFactor" bson:"easeFactor" validate:"gte=0"`
}

type FlashcardSettings struct {
	ReviewAlgorithm string `json:"reviewAlgorithm,omitempty" bson:"reviewAlgorithm,omitempty" validate:"omitempty,oneof=spaced-repetition random sequential"`
	ShowHints       bool   `json:"showHints" bson:"showHints"`
	AutoPlay        bool   `json:"autoPlay" bson:"autoPlay"`
	CardsPerSession int    `json:"cardsPerSession" bson:"cardsPerSession" validate:"gte=0"`
}

type FlashcardStats struct {
	TotalCards        int     `json:"totalCards" bson:"totalCards"`
	Mastered          int     `json:"mastered" bson:"mastered" validate:"gte=0"`
	Learning          int     `json:"learning" bson:"learning" validate:"gte=0"`
	NeedsReview       int     `json:"needsReview" bson:"needsReview" validate:"gte=0"`
	AverageEaseFactor float64 `json:"averageEaseFactor" bson:"averageEaseFactor" validate:"gte=0"`
}

type StudyGuideContent struct {
	Sections      []StudySection `json:"sections" bson:"sections" validate:"dive"`
	Objectives    []string       `json:"objectives" bson:"objectives"`
	Resources     []Resource     `json:"resources" bson:"resources" validate:"dive"`
	Progress      float64        `json:"progress" bson:"progress" validate:"gte=0,lte=100"`
	EstimatedTime int            `json:"estimatedTime" bson:"estimatedTime" validate:"gte=0"`
}

type StudySection struct {
	ID        string `json:"id" bson:"id" validate:"notblank"`
	Title     string `json:"title" bson:"title" validate:"notblank"`
	Content   string `json:"content" bson:"content"`
	Order     int    `json:"order" bson:"order" validate:"gte=0"`
	Completed bool   `json:"completed" bson:"completed"`
	TimeSpent int    `json:"timeSpent" bson:"timeSpent" validate:"gte=0"`
}

type Resource struct {
	ID          string `json:"id" bson:"id" validate:"notblank"`
	Type        string `json:"type" bson:"type" validate:"oneof=link file reference"`
	Title       string `json:"title" bson:"title" validate:"notblank"`
	URL         string `json:"url,omitempty" bson:"url,omitempty"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
}

func (*NotesContent) Kind() Type      { return Notes }
func (*QuizContent) Kind() Type       { return Quiz }
func (*FlashcardsContent) Kind() Type { return Flashcards }
func (*StudyGuideContent) Kind() Type { return StudyGuide }

func (*NotesContent) isBody()      {}
func (*QuizContent) isBody()       {}
func (*FlashcardsContent) isBody() {}
func (*StudyGuideContent) isBody() {}

// normalize fills derived fields and replaces nil slices so every variant
// serializes its collections as arrays.
func (q *QuizContent) normalize() {
	if q.Questions == nil {
		q.Questions = []QuizQuestion{}
	}
	if q.Attempts == nil {
		q.Attempts = []QuizAttempt{}
	}
	if len(q.Attempts) == 0 {
		return
	}
	var total float64
	last := q.Attempts[0].Date
	for _, attempt := range q.Attempts {
		total += attempt.Score
		if attempt.Date.After(last) {
			last = attempt.Date
		}
	}
	avg := total / float64(len(q.Attempts))
	q.AverageScore = &avg
	q.LastAttempt = &last
}

func (f *FlashcardsContent) normalize() {
	if f.Cards == nil {
		f.Cards = []Flashcard{}
	}
	f.Stats.TotalCards = len(f.Cards)
}

func (s *StudyGuideContent) normalize() {
	if s.Sections == nil {
		s.Sections = []StudySection{}
	}
	if s.Objectives == nil {
		s.Objectives = []string{}
	}
	if s.Resources == nil {
		s.Resources = []Resource{}
	}
}
