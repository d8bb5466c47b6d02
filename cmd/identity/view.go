package identity

import "time"

// Settings is the nested preference block of View.
type Settings struct {
	PushNotificationsEnabled bool   `json:"pushNotificationsEnabled"`
	RemindersEnabled         bool   `json:"reminderEnabled"`
	Language                 string `json:"language"`
	Timezone                 string `json:"timezone"`
}

// View is the only account representation that leaves the service.
type View struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Role           string     `json:"role"`
	ProfilePicture *string    `json:"profilePicture"`
	Settings       Settings   `json:"settings"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastLoginAt    *time.Time `json:"lastLoginAt"`
}

// ToView projects an Account, dropping the password hash.
func ToView(a Account) View {
	v := View{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Role:      a.Role,
		Settings: Settings{
			PushNotificationsEnabled: a.PushNotificationsEnabled,
			RemindersEnabled:         a.RemindersEnabled,
			Language:                 a.Language,
			Timezone:                 a.Timezone,
		},
		CreatedAt: a.CreatedAt,
	}
	if a.ProfilePicture != nil {
		p := *a.ProfilePicture
		v.ProfilePicture = &p
	}
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		v.LastLoginAt = &t
	}
	return v
}
