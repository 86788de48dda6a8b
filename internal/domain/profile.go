package domain

// Roles carried in the access token's auth claim.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Profile is the display projection of the logged-in user, fetched from the
// backend after login and cached in durable storage.
type Profile struct {
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	RankingName  string `json:"rankingName"`
	PartName     string `json:"partName"`
	UserEmail    string `json:"userEmail"`
	UserPhone    string `json:"userPhone"`
	ProfileImage string `json:"profileImage,omitempty"`
}
