package social

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
	ProviderKakao  = "kakao"
	ProviderNaver  = "naver"
)

// Default user-info endpoints.
const (
	GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	GitHubUserInfoURL = "https://api.github.com/user"
	KakaoUserInfoURL  = "https://kapi.kakao.com/v2/user/me"
	NaverUserInfoURL  = "https://openapi.naver.com/v1/nid/me"
)

// Provider describes how to ask one identity provider who owns a token.
type Provider struct {
	Name        string
	UserInfoURL string
	Header      http.Header
	Decode      func(body []byte) (*Profile, error)
}

// Google returns the Google provider. An empty url keeps the default.
func Google(url string) Provider {
	return Provider{
		Name:        ProviderGoogle,
		UserInfoURL: orDefault(url, GoogleUserInfoURL),
		Decode: func(body []byte) (*Profile, error) {
			var u struct {
				Sub   string `json:"sub"`
				Email string `json:"email"`
				Name  string `json:"name"`
			}
			if err := json.Unmarshal(body, &u); err != nil {
				return nil, err
			}
			return &Profile{SubjectID: u.Sub, Email: u.Email, Name: u.Name}, nil
		},
	}
}

// GitHub returns the GitHub provider. An empty url keeps the default.
func GitHub(url string) Provider {
	return Provider{
		Name:        ProviderGitHub,
		UserInfoURL: orDefault(url, GitHubUserInfoURL),
		Header:      http.Header{"Accept": []string{"application/vnd.github+json"}},
		Decode: func(body []byte) (*Profile, error) {
			var u struct {
				ID    json.Number `json:"id"`
				Login string      `json:"login"`
				Name  string      `json:"name"`
				Email string      `json:"email"`
			}
			if err := json.Unmarshal(body, &u); err != nil {
				return nil, err
			}
			name := u.Name
			if name == "" {
				name = u.Login
			}
			return &Profile{SubjectID: u.ID.String(), Email: u.Email, Name: name}, nil
		},
	}
}

// Kakao returns the Kakao provider. An empty url keeps the default.
func Kakao(url string) Provider {
	return Provider{
		Name:        ProviderKakao,
		UserInfoURL: orDefault(url, KakaoUserInfoURL),
		Decode: func(body []byte) (*Profile, error) {
			var u struct {
				ID      json.Number `json:"id"`
				Account struct {
					Email   string `json:"email"`
					Profile struct {
						Nickname string `json:"nickname"`
					} `json:"profile"`
				} `json:"kakao_account"`
			}
			if err := json.Unmarshal(body, &u); err != nil {
				return nil, err
			}
			return &Profile{SubjectID: u.ID.String(), Email: u.Account.Email, Name: u.Account.Profile.Nickname}, nil
		},
	}
}

// Naver returns the Naver provider. An empty url keeps the default.
// Naver answers 200 with a non-"00" resultcode for rejected tokens.
func Naver(url string) Provider {
	return Provider{
		Name:        ProviderNaver,
		UserInfoURL: orDefault(url, NaverUserInfoURL),
		Decode: func(body []byte) (*Profile, error) {
			var u struct {
				ResultCode string `json:"resultcode"`
				Message    string `json:"message"`
				Response   struct {
					ID       string `json:"id"`
					Email    string `json:"email"`
					Name     string `json:"name"`
					Nickname string `json:"nickname"`
				} `json:"response"`
			}
			if err := json.Unmarshal(body, &u); err != nil {
				return nil, err
			}
			if u.ResultCode != "" && u.ResultCode != "00" {
				return nil, fmt.Errorf("naver result %s: %s", u.ResultCode, u.Message)
			}
			name := u.Response.Name
			if name == "" {
				name = u.Response.Nickname
			}
			return &Profile{SubjectID: u.Response.ID, Email: u.Response.Email, Name: name}, nil
		},
	}
}

// Endpoints overrides provider user-info URLs; empty fields keep defaults.
type Endpoints struct {
	Google string
	GitHub string
	Kakao  string
	Naver  string
}

// DefaultProviders returns the four supported providers.
func DefaultProviders(e Endpoints) []Provider {
	return []Provider{Google(e.Google), GitHub(e.GitHub), Kakao(e.Kakao), Naver(e.Naver)}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
