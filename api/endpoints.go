// Package api declares the endpoints of the Lingo backend.
//
// Each endpoint is a static descriptor with typed parameters and result.
// NewService binds them all to a client; Registry exposes them by name for
// untyped callers such as lingoctl.
package api

import (
	"context"
	"net/http"

	lc "github.com/panyam/lingoclient"
)

type none = struct{}

// App
var (
	GetAppConfig = lc.MustEndpoint[none, AppConfig]("app.config", http.MethodGet, "/v1/api/app/config", lc.Public())
)

// Profile
var (
	GetMe         = lc.MustEndpoint[none, Profile]("user.me", http.MethodGet, "/v1/api/users/me")
	GetUser       = lc.MustEndpoint[UserID, Profile]("user.get", http.MethodGet, "/v1/api/users/:id")
	UpdateProfile = lc.MustEndpoint[UpdateProfileRequest, Profile]("user.update", http.MethodPatch, "/v1/api/users/me")
)

// Vocabulary
var (
	ListWords  = lc.MustEndpoint[ListWordsRequest, WordList]("words.list", http.MethodGet, "/v1/api/words")
	GetWord    = lc.MustEndpoint[WordID, Word]("words.get", http.MethodGet, "/v1/api/words/:wordId")
	AddWord    = lc.MustEndpoint[AddWordRequest, Word]("words.add", http.MethodPost, "/v1/api/words")
	MarkWord   = lc.MustEndpoint[MarkWordRequest, Word]("words.review", http.MethodPost, "/v1/api/words/:wordId/review")
	DeleteWord = lc.MustEndpoint[WordID, none]("words.delete", http.MethodDelete, "/v1/api/words/:wordId")
)

// Chat
var (
	SendMessage    = lc.MustEndpoint[SendMessageRequest, ChatReply]("chat.send", http.MethodPost, "/v1/api/chat/:sessionId/messages")
	GetChatHistory = lc.MustEndpoint[SessionID, ChatHistory]("chat.history", http.MethodGet, "/v1/api/chat/:sessionId/messages")
)

// Translation lives on the v2 API.
var (
	Translate = lc.MustEndpoint[TranslateRequest, Translation]("translate", http.MethodPost, "/v2/api/translate")
)

// Photo stories
var (
	CreateStory = lc.MustEndpoint[CreateStoryRequest, PhotoStory]("stories.create", http.MethodPost, "/v1/api/photo-stories")
	GetStory    = lc.MustEndpoint[StoryID, PhotoStory]("stories.get", http.MethodGet, "/v1/api/photo-stories/:storyId")
	ListStories = lc.MustEndpoint[none, StoryList]("stories.list", http.MethodGet, "/v1/api/photo-stories")
)

// Descriptors returns every endpoint of the package, auth endpoints included.
func Descriptors() []lc.Descriptor {
	return []lc.Descriptor{
		lc.LoginEndpoint.Descriptor,
		lc.RefreshEndpoint.Descriptor,
		GetAppConfig.Descriptor,
		GetMe.Descriptor,
		GetUser.Descriptor,
		UpdateProfile.Descriptor,
		ListWords.Descriptor,
		GetWord.Descriptor,
		AddWord.Descriptor,
		MarkWord.Descriptor,
		DeleteWord.Descriptor,
		SendMessage.Descriptor,
		GetChatHistory.Descriptor,
		Translate.Descriptor,
		CreateStory.Descriptor,
		GetStory.Descriptor,
		ListStories.Descriptor,
	}
}

// Registry returns a registry holding Descriptors.
func Registry() *lc.Registry {
	reg, err := lc.NewRegistry(Descriptors()...)
	if err != nil {
		panic(err)
	}
	return reg
}

// Service is the typed surface of the backend, one function per endpoint.
type Service struct {
	AppConfig func(context.Context) (AppConfig, error)

	Me            func(context.Context) (Profile, error)
	User          func(context.Context, UserID) (Profile, error)
	UpdateProfile func(context.Context, UpdateProfileRequest) (Profile, error)

	ListWords  func(context.Context, ListWordsRequest) (WordList, error)
	Word       func(context.Context, WordID) (Word, error)
	AddWord    func(context.Context, AddWordRequest) (Word, error)
	MarkWord   func(context.Context, MarkWordRequest) (Word, error)
	DeleteWord func(context.Context, WordID) (none, error)

	SendMessage func(context.Context, SendMessageRequest) (ChatReply, error)
	ChatHistory func(context.Context, SessionID) (ChatHistory, error)

	Translate func(context.Context, TranslateRequest) (Translation, error)

	CreateStory func(context.Context, CreateStoryRequest) (PhotoStory, error)
	Story       func(context.Context, StoryID) (PhotoStory, error)
	Stories     func(context.Context) (StoryList, error)
}

// NewService binds every endpoint to c.
func NewService(c *lc.Client) *Service {
	return &Service{
		AppConfig: lc.BindNoParams(c, GetAppConfig),

		Me:            lc.BindNoParams(c, GetMe),
		User:          lc.Bind(c, GetUser),
		UpdateProfile: lc.Bind(c, UpdateProfile),

		ListWords:  lc.Bind(c, ListWords),
		Word:       lc.Bind(c, GetWord),
		AddWord:    lc.Bind(c, AddWord),
		MarkWord:   lc.Bind(c, MarkWord),
		DeleteWord: lc.Bind(c, DeleteWord),

		SendMessage: lc.Bind(c, SendMessage),
		ChatHistory: lc.Bind(c, GetChatHistory),

		Translate: lc.Bind(c, Translate),

		CreateStory: lc.Bind(c, CreateStory),
		Story:       lc.Bind(c, GetStory),
		Stories:     lc.BindNoParams(c, ListStories),
	}
}
