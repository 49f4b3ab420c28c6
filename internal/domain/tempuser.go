package domain

// Channel is a verification/delivery medium.
type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelMobile Channel = "mobile"
)

// Valid reports whether c is a known verification channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelMobile
}

// TempUser is the staging record for a registration in progress. It lives in
// the ephemeral store keyed by normalized email and disappears on TTL expiry,
// explicit cleanup, or promotion to a permanent User.
type TempUser struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	MobileNo          string `json:"mobile_no"`
	Password          string `json:"password"` // bcrypt hash, never cleartext
	EmailVerified     bool   `json:"email_verified"`
	MobileVerified    bool   `json:"mobile_verified"`
	EmailOTPAttempts  int    `json:"email_otp_attempts"`
	MobileOTPAttempts int    `json:"mobile_otp_attempts"`
	CreatedAt         int64  `json:"created_at"`               // epoch ms
	LastOTPSent       int64  `json:"last_otp_sent,omitempty"`  // epoch ms, 0 until first resend
}

// Attempts returns the OTP attempt counter for the given channel.
func (t *TempUser) Attempts(ch Channel) int {
	if ch == ChannelEmail {
		return t.EmailOTPAttempts
	}
	return t.MobileOTPAttempts
}

// SetAttempts sets the OTP attempt counter for the given channel.
func (t *TempUser) SetAttempts(ch Channel, n int) {
	if ch == ChannelEmail {
		t.EmailOTPAttempts = n
		return
	}
	t.MobileOTPAttempts = n
}

// Verified returns the verification flag for the given channel.
func (t *TempUser) Verified(ch Channel) bool {
	if ch == ChannelEmail {
		return t.EmailVerified
	}
	return t.MobileVerified
}

// SetVerified marks the given channel as verified.
func (t *TempUser) SetVerified(ch Channel) {
	if ch == ChannelEmail {
		t.EmailVerified = true
		return
	}
	t.MobileVerified = true
}

// IsComplete reports whether both channels have been verified.
func (t *TempUser) IsComplete() bool {
	return t.EmailVerified && t.MobileVerified
}

// RegisterRequest is the schema-validated registration input.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	MobileNo string `json:"mobile_no" validate:"required,min=10,max=15"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// VerifyRequest submits an OTP for one channel of an in-progress registration.
type VerifyRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	MobileNo string  `json:"mobile_no" validate:"required"`
	Type     Channel `json:"type" validate:"required"`
	OTP      string  `json:"otp" validate:"required"`
}

// ResendRequest asks for fresh OTPs on all still-unverified channels.
type ResendRequest struct {
	Email    string `json:"email" validate:"required,email"`
	MobileNo string `json:"mobile_no" validate:"required"`
}

// RegisterResult is returned after a successful registration request.
type RegisterResult struct {
	Email                string   `json:"email"`
	MobileNo             string   `json:"mobile_no"`
	NextStep             string   `json:"next_step"`
	VerificationRequired []string `json:"verification_required"`
	OTPValidity          string   `json:"otp_validity"`
}

// VerifyResult reports the outcome of a single OTP verification. User is
// non-nil only when IsComplete is true.
type VerifyResult struct {
	IsComplete     bool    `json:"isComplete"`
	VerifiedType   Channel `json:"verifiedType,omitempty"`
	EmailVerified  bool    `json:"email_verified"`
	MobileVerified bool    `json:"mobile_verified"`
	User           *User   `json:"user,omitempty"`
}

// ResendResult is returned after OTPs were reissued.
type ResendResult struct {
	Email          string `json:"email"`
	MobileNo       string `json:"mobile_no"`
	OTPValidity    string `json:"otp_validity"`
	ResendCooldown string `json:"resend_cooldown"`
}
