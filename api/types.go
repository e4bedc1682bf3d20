package api

import (
	"strings"

	lc "github.com/panyam/lingoclient"
)

// Profile is the learner profile returned by the user endpoints.
type Profile struct {
	ID         string `json:"id"`
	Nickname   string `json:"nickname"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	Level      string `json:"level,omitempty"`
	DailyGoal  int    `json:"daily_goal,omitempty"`
	StreakDays int    `json:"streak_days,omitempty"`
}

type UserID struct {
	ID string `json:"id"`
}

func (p UserID) Validate() error {
	v := &lc.ValidationError{}
	if p.ID == "" {
		v.Add("id", "required")
	}
	return v.OrNil()
}

type UpdateProfileRequest struct {
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	DailyGoal int    `json:"daily_goal,omitempty"`
}

func (r UpdateProfileRequest) Validate() error {
	v := &lc.ValidationError{}
	if len(r.Nickname) > 32 {
		v.Add("nickname", "at most 32 characters")
	}
	if r.DailyGoal < 0 {
		v.Add("daily_goal", "must not be negative")
	}
	return v.OrNil()
}

// Word is one vocabulary entry.
type Word struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	Phonetic    string   `json:"phonetic,omitempty"`
	Definitions []string `json:"definitions,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	Mastered    bool     `json:"mastered"`
}

type WordList struct {
	Words []Word `json:"words"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
}

type ListWordsRequest struct {
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
	Level    string `json:"level,omitempty"`
}

func (r ListWordsRequest) Validate() error {
	v := &lc.ValidationError{}
	if r.Page < 0 {
		v.Add("page", "must not be negative")
	}
	if r.PageSize < 0 || r.PageSize > 100 {
		v.Add("page_size", "must be between 0 and 100")
	}
	return v.OrNil()
}

type WordID struct {
	WordID string `json:"wordId"`
}

func (p WordID) Validate() error {
	v := &lc.ValidationError{}
	if p.WordID == "" {
		v.Add("wordId", "required")
	}
	return v.OrNil()
}

type AddWordRequest struct {
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

func (r AddWordRequest) Validate() error {
	v := &lc.ValidationError{}
	if strings.TrimSpace(r.Text) == "" {
		v.Add("text", "required")
	}
	return v.OrNil()
}

// MarkWordRequest records a review result for a word.
type MarkWordRequest struct {
	WordID   string `json:"wordId"`
	Mastered bool   `json:"mastered"`
}

func (r MarkWordRequest) Validate() error {
	return WordID{WordID: r.WordID}.Validate()
}

// ChatMessage is one turn of a practice conversation.
type ChatMessage struct {
	ID        string `json:"id,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	AudioURL  string `json:"audio_url,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

type SendMessageRequest struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	Scenario  string `json:"scenario,omitempty"`
}

func (r SendMessageRequest) Validate() error {
	v := &lc.ValidationError{}
	if r.SessionID == "" {
		v.Add("sessionId", "required")
	}
	if strings.TrimSpace(r.Content) == "" {
		v.Add("content", "required")
	}
	return v.OrNil()
}

type ChatReply struct {
	Reply       ChatMessage `json:"reply"`
	Corrections []string    `json:"corrections,omitempty"`
}

type SessionID struct {
	SessionID string `json:"sessionId"`
}

func (p SessionID) Validate() error {
	v := &lc.ValidationError{}
	if p.SessionID == "" {
		v.Add("sessionId", "required")
	}
	return v.OrNil()
}

type ChatHistory struct {
	Messages []ChatMessage `json:"messages"`
}

type TranslateRequest struct {
	Text string `json:"text"`
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}

func (r TranslateRequest) Validate() error {
	v := &lc.ValidationError{}
	if strings.TrimSpace(r.Text) == "" {
		v.Add("text", "required")
	}
	if r.To == "" {
		v.Add("to", "required")
	}
	return v.OrNil()
}

type Translation struct {
	Text         string   `json:"text"`
	Detected     string   `json:"detected,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// PhotoStory is a short story generated from a photo.
type PhotoStory struct {
	ID       string   `json:"id"`
	ImageURL string   `json:"image_url"`
	Title    string   `json:"title"`
	Story    string   `json:"story"`
	Words    []string `json:"words,omitempty"`
}

type CreateStoryRequest struct {
	ImageURL string `json:"image_url"`
	Level    string `json:"level,omitempty"`
}

func (r CreateStoryRequest) Validate() error {
	v := &lc.ValidationError{}
	if !strings.HasPrefix(r.ImageURL, "https://") && !strings.HasPrefix(r.ImageURL, "http://") {
		v.Add("image_url", "must be an http(s) URL")
	}
	return v.OrNil()
}

type StoryID struct {
	StoryID string `json:"storyId"`
}

func (p StoryID) Validate() error {
	v := &lc.ValidationError{}
	if p.StoryID == "" {
		v.Add("storyId", "required")
	}
	return v.OrNil()
}

type StoryList struct {
	Stories []PhotoStory `json:"stories"`
}

// AppConfig is the public startup configuration.
type AppConfig struct {
	MinVersion  string            `json:"min_version"`
	Maintenance bool              `json:"maintenance"`
	Features    map[string]bool   `json:"features,omitempty"`
	Links       map[string]string `json:"links,omitempty"`
}
