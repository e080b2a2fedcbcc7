package api

// Wire types for the backend's request and response documents. Only the
// fields the client reads are declared; unknown fields are ignored on
// decode.

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Message      string `json:"message"`
	Status       bool   `json:"status"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Role         string `json:"role"`
}

type Skill struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SkillName string `json:"skillName"`
}

type LearnSkill struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"userId"`
	SkillID       int64  `json:"skillId"`
	SkillName     string `json:"skillName"`
	PriorityLevel string `json:"priorityLevel"`
	PreferredMode string `json:"preferredMode"`
	DayOfWeek     string `json:"dayOfWeek"`
	StartTime     string `json:"startTime"`
	EndTime       string `json:"endTime"`
}

type TeachSkill struct {
	TeachID          int64  `json:"teachId"`
	UserID           int64  `json:"userId"`
	UserName         string `json:"userName"`
	SkillID          int64  `json:"skillId"`
	SkillName        string `json:"skillName"`
	ProficiencyLevel string `json:"proficiencyLevel"`
	PreferredMode    string `json:"preferredMode"`
	ConfidenceScore  int    `json:"confidenceScore"`
	DayOfWeek        string `json:"dayOfWeek"`
	StartTime        string `json:"startTime"`
	EndTime          string `json:"endTime"`
}

type Session struct {
	SessionID       int64  `json:"sessionId"`
	MentorID        int64  `json:"mentorId"`
	MentorName      string `json:"mentorName"`
	LearnerID       int64  `json:"learnerId"`
	LearnerName     string `json:"learnerName"`
	SkillID         int64  `json:"skillId"`
	SkillName       string `json:"skillName"`
	Agenda          string `json:"agenda"`
	Status          string `json:"status"`
	ScheduledTime   string `json:"scheduledTime"`
	DurationMinutes int    `json:"durationMinutes"`
}

type MentorMatch struct {
	MentorID         int64  `json:"mentorId"`
	MentorName       string `json:"mentorName"`
	City             string `json:"city"`
	SkillID          int64  `json:"skillId"`
	ProficiencyLevel string `json:"proficiencyLevel"`
	ConfidenceScore  int    `json:"confidenceScore"`
	PreferredMode    string `json:"preferredMode"`
	MatchExplanation string `json:"matchExplanation"`
}

type Wallet struct {
	ID      int64  `json:"id"`
	UserID  int64  `json:"userId"`
	Coins   int    `json:"coins"`
	Message string `json:"message"`
}

type ChatMessage struct {
	MessageID  int64  `json:"messageId"`
	SessionID  int64  `json:"sessionId"`
	SenderID   int64  `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Type       string `json:"type"`
	SentAt     string `json:"sentAt"`
}

type Feedback struct {
	ID           int64  `json:"id"`
	SessionID    int64  `json:"sessionId"`
	Rating       int    `json:"rating"`
	ClarityScore int    `json:"clarityScore"`
	ValueScore   int    `json:"valueScore"`
	Comments     string `json:"comments"`
	FromUserID   int64  `json:"fromUserId"`
	ToUserID     int64  `json:"toUserId"`
}

type MentorRating struct {
	AverageRating  float64 `json:"averageRating"`
	TotalReviews   int64   `json:"totalReviews"`
	ClarityAverage float64 `json:"clarityAverage"`
	ValueAverage   float64 `json:"valueAverage"`
}

type TopMentor struct {
	UserID            int64   `json:"userId"`
	FirstName         string  `json:"firstName"`
	LastName          string  `json:"lastName"`
	Username          string  `json:"username"`
	CompletedSessions int64   `json:"completedSessions"`
	AverageRating     float64 `json:"averageRating"`
}

type UserProfile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	City      string `json:"city"`
}

// StatusResponse covers the backend's generic {status, message} documents.
type StatusResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}
