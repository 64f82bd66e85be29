package domain

// TokenPair is what a successful login returns: a short-lived JWT access
// token and a longer-lived refresh token bound to a session row.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"` // always "Bearer"
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime, seconds
}

// LoginResult bundles the authenticated user summary with its tokens.
type LoginResult struct {
	User   Summary
	Tokens TokenPair
}
