package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/talent-tandem/tandem-go/cache"
	"github.com/talent-tandem/tandem-go/credential"
)

// Cache namespaces. One per backend collection the client caches.
const (
	nsSkills      = "skills"
	nsLearnSkills = "learn-skills"
	nsTeachSkills = "teach-skills"
)

// --- auth ---

// Login authenticates with the backend. On success the returned token pair
// and the user identity are durably stored before Login returns.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	var resp LoginResponse
	err := c.Do(ctx, Request{
		Method:          http.MethodPost,
		Path:            "/auth/login",
		Body:            req,
		Unauthenticated: true,
	}, &resp)
	if err != nil {
		return LoginResponse{}, err
	}

	if resp.Status && resp.AccessToken != "" {
		pair := credential.Pair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
		if err := c.creds.Set(ctx, pair); err != nil {
			return LoginResponse{}, fmt.Errorf("storing login credentials: %w", err)
		}
		identity := credential.Identity{ID: resp.ID, Username: resp.Username, Email: resp.Email}
		if err := c.creds.SetIdentity(ctx, identity); err != nil {
			return LoginResponse{}, fmt.Errorf("storing login identity: %w", err)
		}
	}

	return resp, nil
}

// RefreshSession renews the credential pair immediately, sharing any
// renewal already in flight. Failure expires the session.
func (c *Client) RefreshSession(ctx context.Context) error {
	if err := c.renewOnce(ctx); err != nil {
		return c.expireSession(ctx, err)
	}
	return nil
}

// Logout clears stored credentials and all user-scoped cached reads. It
// makes no network call: the backend's tokens are stateless.
func (c *Client) Logout(ctx context.Context) error {
	c.cache.InvalidateNamespace(nsLearnSkills)
	c.cache.InvalidateNamespace(nsTeachSkills)
	return c.creds.Clear(ctx)
}

func (c *Client) SignupStep1(ctx context.Context, email string) (StatusResponse, error) {
	var resp StatusResponse
	err := c.Do(ctx, Request{
		Method:          http.MethodPost,
		Path:            "/auth/signup/step1",
		Body:            map[string]string{"email": email},
		Unauthenticated: true,
	}, &resp)
	return resp, err
}

func (c *Client) CompleteSignup(ctx context.Context, signup any) (LoginResponse, error) {
	var resp LoginResponse
	err := c.Do(ctx, Request{
		Method:          http.MethodPost,
		Path:            "/auth/signup/complete",
		Body:            signup,
		Unauthenticated: true,
	}, &resp)
	return resp, err
}

func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (StatusResponse, error) {
	var resp StatusResponse
	err := c.Do(ctx, Request{
		Method:          http.MethodPost,
		Path:            "/auth/verify-otp",
		Body:            map[string]string{"email": email, "otp": otp},
		Unauthenticated: true,
	}, &resp)
	return resp, err
}

func (c *Client) ResendOTP(ctx context.Context, email string) (StatusResponse, error) {
	var resp StatusResponse
	err := c.Do(ctx, Request{
		Method:          http.MethodPost,
		Path:            "/auth/resend-otp",
		Body:            map[string]string{"email": email},
		Unauthenticated: true,
	}, &resp)
	return resp, err
}

// --- users ---

func (c *Client) UserProfile(ctx context.Context, userID int64) (UserProfile, error) {
	var resp UserProfile
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/user/profile/" + formatID(userID)}, &resp)
	return resp, err
}

func (c *Client) SelectRole(ctx context.Context, role any) (StatusResponse, error) {
	var resp StatusResponse
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/user/select-role", Body: role}, &resp)
	return resp, err
}

func (c *Client) TopMentors(ctx context.Context, limit int) ([]TopMentor, error) {
	var resp []TopMentor
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/user/top-mentors?limit=" + strconv.Itoa(limit)}, &resp)
	return resp, err
}

// --- skills ---

// AllSkills returns the global skill catalogue, cached under the reference
// TTL class.
func (c *Client) AllSkills(ctx context.Context) ([]Skill, error) {
	var skills []Skill
	key := cache.Key{Namespace: nsSkills, ID: "all"}
	if err := c.cachedGet(ctx, key, c.referenceTTL, "/skill/all", &skills); err != nil {
		return nil, err
	}

	// the catalogue exposes the name under skillName
	for i := range skills {
		if skills[i].Name == "" {
			skills[i].Name = skills[i].SkillName
		}
	}

	return skills, nil
}

// LearnSkills returns the user's learning skill list, cached under the
// short user-scoped TTL class.
func (c *Client) LearnSkills(ctx context.Context, userID int64) ([]LearnSkill, error) {
	var skills []LearnSkill
	key := cache.Key{Namespace: nsLearnSkills, ID: formatID(userID)}
	err := c.cachedGet(ctx, key, c.userScopedTTL, "/learn-skill/user/"+formatID(userID), &skills)
	return skills, err
}

func (c *Client) TeachSkills(ctx context.Context, userID int64) ([]TeachSkill, error) {
	var skills []TeachSkill
	key := cache.Key{Namespace: nsTeachSkills, ID: formatID(userID)}
	err := c.cachedGet(ctx, key, c.userScopedTTL, "/teach-skill/user/"+formatID(userID), &skills)
	return skills, err
}

// AddLearnSkill registers a learning skill for the user and invalidates the
// user's cached learn-skill list before returning, so a subsequent read
// observes the write.
func (c *Client) AddLearnSkill(ctx context.Context, userID int64, skill any) (LearnSkill, error) {
	var resp LearnSkill
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/learn-skill/add", Body: skill}, &resp)
	if err != nil {
		return LearnSkill{}, err
	}

	c.cache.Invalidate(cache.Key{Namespace: nsLearnSkills, ID: formatID(userID)})
	return resp, nil
}

// DeleteLearnSkill removes a learning skill. The owning user is not part of
// the request, so the whole namespace is invalidated.
func (c *Client) DeleteLearnSkill(ctx context.Context, skillID int64) error {
	err := c.Do(ctx, Request{Method: http.MethodDelete, Path: "/learn-skill/" + formatID(skillID)}, nil)
	if err != nil {
		return err
	}

	c.cache.InvalidateNamespace(nsLearnSkills)
	return nil
}

func (c *Client) AddTeachSkill(ctx context.Context, userID int64, skill any) (TeachSkill, error) {
	var resp TeachSkill
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/teach-skill/add", Body: skill}, &resp)
	if err != nil {
		return TeachSkill{}, err
	}

	c.cache.Invalidate(cache.Key{Namespace: nsTeachSkills, ID: formatID(userID)})
	return resp, nil
}

func (c *Client) DeleteTeachSkill(ctx context.Context, skillID int64) error {
	err := c.Do(ctx, Request{Method: http.MethodDelete, Path: "/teach-skill/" + formatID(skillID)}, nil)
	if err != nil {
		return err
	}

	c.cache.InvalidateNamespace(nsTeachSkills)
	return nil
}

// --- matching ---

// FindMentors runs the match engine for the given criteria. The backend
// wraps the result in a {matches: [...]} document; older deployments return
// the bare array, and both shapes are accepted.
func (c *Client) FindMentors(ctx context.Context, criteria any) ([]MentorMatch, error) {
	var raw json.RawMessage
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/match-engine/find", Body: criteria}, &raw)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var wrapped struct {
		Matches []MentorMatch `json:"matches"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Matches != nil {
		return wrapped.Matches, nil
	}

	var matches []MentorMatch
	if err := json.Unmarshal(raw, &matches); err != nil {
		return nil, fmt.Errorf("decoding match result: %w", err)
	}
	return matches, nil
}

// --- sessions ---

func (c *Client) BookSession(ctx context.Context, booking any) (Session, error) {
	var resp Session
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/sessions/book", Body: booking}, &resp)
	return resp, err
}

func (c *Client) UserSessions(ctx context.Context, userID int64) ([]Session, error) {
	var resp []Session
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/sessions/user/" + formatID(userID)}, &resp)
	return resp, err
}

func (c *Client) Session(ctx context.Context, sessionID int64) (Session, error) {
	var resp Session
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/sessions/" + formatID(sessionID)}, &resp)
	return resp, err
}

func (c *Client) UpdateSessionStatus(ctx context.Context, sessionID int64, status string) (Session, error) {
	var resp Session
	err := c.Do(ctx, Request{
		Method: http.MethodPut,
		Path:   "/sessions/" + formatID(sessionID) + "/status?status=" + status,
	}, &resp)
	return resp, err
}

func (c *Client) StartSession(ctx context.Context, sessionID int64) (Session, error) {
	var resp Session
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/sessions/start/" + formatID(sessionID)}, &resp)
	return resp, err
}

func (c *Client) CompleteSession(ctx context.Context, sessionID int64) (Session, error) {
	var resp Session
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/sessions/complete/" + formatID(sessionID)}, &resp)
	return resp, err
}

// --- wallet ---

// Wallet returns the wallet for userID, or the current user's wallet when
// userID is zero.
func (c *Client) Wallet(ctx context.Context, userID int64) (Wallet, error) {
	path := "/api/wallet"
	if userID != 0 {
		path = "/api/wallet/user/" + formatID(userID)
	}

	var resp Wallet
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: path}, &resp)
	return resp, err
}

func (c *Client) CreditCoins(ctx context.Context, userID int64, coins int) (Wallet, error) {
	var resp Wallet
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/wallet/credit/" + formatID(userID) + "?coins=" + strconv.Itoa(coins),
	}, &resp)
	return resp, err
}

func (c *Client) DebitCoins(ctx context.Context, userID int64, coins int) (Wallet, error) {
	var resp Wallet
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/wallet/debit/" + formatID(userID) + "?coins=" + strconv.Itoa(coins),
	}, &resp)
	return resp, err
}

func (c *Client) CheckCoins(ctx context.Context, userID int64, required int) (StatusResponse, error) {
	var resp StatusResponse
	err := c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/wallet/check/" + formatID(userID) + "?requiredCoins=" + strconv.Itoa(required),
	}, &resp)
	return resp, err
}

// --- chat ---

func (c *Client) SendChatMessage(ctx context.Context, message any) (ChatMessage, error) {
	var resp ChatMessage
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/api/chat/send", Body: message}, &resp)
	return resp, err
}

func (c *Client) ChatMessages(ctx context.Context, sessionID int64) ([]ChatMessage, error) {
	var resp []ChatMessage
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/api/chat/" + formatID(sessionID)}, &resp)
	return resp, err
}

// --- feedback ---

func (c *Client) SubmitFeedback(ctx context.Context, feedback any) (Feedback, error) {
	var resp Feedback
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/api/feedback/submit", Body: feedback}, &resp)
	return resp, err
}

func (c *Client) MentorRating(ctx context.Context, mentorID int64) (MentorRating, error) {
	var resp MentorRating
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/api/feedback/mentors/" + formatID(mentorID) + "/rating"}, &resp)
	return resp, err
}

// cachedGet serves the read from the response cache when a fresh entry
// exists, fetching and caching the raw body otherwise.
func (c *Client) cachedGet(ctx context.Context, key cache.Key, ttl time.Duration, path string, out any) error {
	if body, ok := c.cache.Get(key); ok {
		log.Ctx(ctx).Debug().Str("key", key.String()).Msg("cache hit")
		return json.Unmarshal(body, out)
	}

	var raw json.RawMessage
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: path}, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	c.cache.Put(key, raw, ttl)
	return json.Unmarshal(raw, out)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
