package jwt

type Role int

const (
	RoleOperator Role = iota
)

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Operator identifies a console user acting on behalf of one tenant.
type Operator struct {
	Id       string `json:"id"`
	Email    string `json:"email"`
	TenantId string `json:"tenantId"`
}
