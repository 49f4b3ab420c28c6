package notification

import (
	"fmt"

	"github.com/go-signup-api/internal/domain"
)

// Payload templates for the registration flow. The dispatcher turns the
// email ones into multipart text+HTML messages.

// VerificationEmail builds the OTP verification payload for a new signup.
func VerificationEmail(to, name, code, validity string) domain.NotificationPayload {
	return domain.NotificationPayload{
		Channel: domain.NotificationEmail,
		To:      to,
		Subject: "Verify Your Email Address",
		Message: fmt.Sprintf("Hello %s! Your verification code is %s. It expires in %s.", name, code, validity),
		HTML: fmt.Sprintf(`<html><body>
<h2>Hello %s!</h2>
<p>Thank you for signing up! To complete your registration, please verify your email address using the code below:</p>
<p style="font-size:28px;font-weight:bold;letter-spacing:4px;">%s</p>
<p>This code expires in %s.</p>
<p>Never share this code with anyone. If you didn't request this verification, please ignore this email.</p>
</body></html>`, name, code, validity),
		Priority: domain.PriorityHigh,
	}
}

// VerificationSMS builds the OTP text payload for the mobile channel.
func VerificationSMS(to, code, validity string) domain.NotificationPayload {
	return domain.NotificationPayload{
		Channel:  domain.NotificationSMS,
		To:       to,
		Message:  fmt.Sprintf("Your verification OTP is: %s. Valid for %s.", code, validity),
		Priority: domain.PriorityHigh,
	}
}

// WelcomeEmail builds the greeting sent once registration completes.
func WelcomeEmail(to, name string) domain.NotificationPayload {
	return domain.NotificationPayload{
		Channel: domain.NotificationEmail,
		To:      to,
		Subject: "Welcome aboard!",
		Message: fmt.Sprintf("Hi %s, your account is ready. Welcome!", name),
		HTML: fmt.Sprintf(`<html><body>
<h2>Hi %s,</h2>
<p>Your email and mobile number are verified and your account is ready.</p>
<p>Welcome!</p>
</body></html>`, name),
		Priority: domain.PriorityLow,
	}
}
