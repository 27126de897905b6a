package identity

import "time"

// Subscription is the account's billing tier.
type Subscription string

const (
	SubscriptionStarter  Subscription = "starter"
	SubscriptionPro      Subscription = "pro"
	SubscriptionBusiness Subscription = "business"
)

// DefaultSubscription is assigned to every new account.
const DefaultSubscription = SubscriptionStarter

// Valid reports whether s is a known tier.
func (s Subscription) Valid() bool {
	switch s {
	case SubscriptionStarter, SubscriptionPro, SubscriptionBusiness:
		return true
	default:
		return false
	}
}

// User is the persisted account record. Empty VerificationToken and
// SessionToken mean the value is absent.
type User struct {
	ID                string
	Email             string
	PasswordHash      string
	Subscription      Subscription
	AvatarURL         string
	Verified          bool
	VerificationToken string
	SessionToken      string
	CreatedAt         time.Time
}

// Update lists the fields a store may change on an existing user. Nil
// pointers are left untouched; a pointer to "" clears a token.
type Update struct {
	PasswordHash      *string
	Subscription      *Subscription
	AvatarURL         *string
	Verified          *bool
	VerificationToken *string
	SessionToken      *string
}

// Apply copies the set fields of u onto user.
func (u Update) Apply(user *User) {
	if u.PasswordHash != nil {
		user.PasswordHash = *u.PasswordHash
	}
	if u.Subscription != nil {
		user.Subscription = *u.Subscription
	}
	if u.AvatarURL != nil {
		user.AvatarURL = *u.AvatarURL
	}
	if u.Verified != nil {
		user.Verified = *u.Verified
	}
	if u.VerificationToken != nil {
		user.VerificationToken = *u.VerificationToken
	}
	if u.SessionToken != nil {
		user.SessionToken = *u.SessionToken
	}
}

// IsEmpty reports whether no field is set.
func (u Update) IsEmpty() bool {
	return u.PasswordHash == nil && u.Subscription == nil && u.AvatarURL == nil &&
		u.Verified == nil && u.VerificationToken == nil && u.SessionToken == nil
}

// Ptr returns a pointer to v, for building Updates inline.
func Ptr[T any](v T) *T { return &v }

// Credentials request structure.
type Credentials struct {
	Email    string
	Password string
}
