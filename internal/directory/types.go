package directory

import "time"

// RawUser is the deserialization boundary for a Graph user object. Optional
// fields stay as zero values; the mapper decides what is fatal.
type RawUser struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	Department        string `json:"department"`
	JobTitle          string `json:"jobTitle"`
	EmployeeID        string `json:"employeeId"`
	MobilePhone       string `json:"mobilePhone"`
	AccountEnabled    bool   `json:"accountEnabled"`
}

// RawDevice is the deserialization boundary for a Graph device object.
// SerialNumber is frequently absent for directory-registered devices.
type RawDevice struct {
	ID                     string `json:"id"`
	DisplayName            string `json:"displayName"`
	OperatingSystem        string `json:"operatingSystem"`
	OperatingSystemVersion string `json:"operatingSystemVersion"`
	Manufacturer           string `json:"manufacturer"`
	Model                  string `json:"model"`
	SerialNumber           string `json:"serialNumber"`
	AccountEnabled         bool   `json:"accountEnabled"`
}

// RawDeletedUser comes from the directory's recently-deleted collection,
// which retains soft-deleted users for a bounded window.
type RawDeletedUser struct {
	ID              string     `json:"id"`
	DisplayName     string     `json:"displayName"`
	DeletedDateTime *time.Time `json:"deletedDateTime"`
}

// Token is a cached bearer token with its absolute expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the token can still be used, with a safety margin so
// an almost-expired token is refreshed before a long paginated fetch.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-2*time.Minute))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type userPage struct {
	Value    []RawUser `json:"value"`
	NextLink string    `json:"@odata.nextLink"`
}

type devicePage struct {
	Value    []RawDevice `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

type deletedUserPage struct {
	Value    []RawDeletedUser `json:"value"`
	NextLink string           `json:"@odata.nextLink"`
}
