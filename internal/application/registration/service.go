package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-signup-api/internal/application/notification"
	"github.com/go-signup-api/internal/application/otp"
	"github.com/go-signup-api/internal/config"
	"github.com/go-signup-api/internal/domain"
	redisstore "github.com/go-signup-api/internal/infrastructure/redis"
	"golang.org/x/crypto/bcrypt"
)

const tempUserPrefix = "temp_user:"

// Service drives a registration from an unauthenticated request through
// two-channel OTP verification to permanent account creation. The temp-user
// record is the single piece of multi-field state; every mutation of it goes
// through an optimistic check-and-set so concurrent channel verifications
// cannot lose an update, and the final completion happens at most once.
type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error)
	Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error)
	Resend(ctx context.Context, req domain.ResendRequest) (*domain.ResendResult, error)
	GetTempUser(ctx context.Context, email string) (*domain.TempUser, error)
}

// userRepository is the permanent-account collaborator. Create must re-check
// conflicts transactionally before insert.
type userRepository interface {
	CheckConflict(ctx context.Context, email, mobile string) (domain.ConflictCheck, error)
	Create(ctx context.Context, data domain.CreateUserData) (*domain.User, error)
}

type service struct {
	store      *redisstore.Client
	otp        otp.Service
	users      userRepository
	sink       notification.Sink
	dispatcher notification.Dispatcher
	cfg        config.AuthConfig
}

// ServiceDeps holds the collaborators for NewService.
type ServiceDeps struct {
	Store      *redisstore.Client
	OTP        otp.Service
	Users      userRepository
	Sink       notification.Sink
	Dispatcher notification.Dispatcher
	Auth       config.AuthConfig
}

func NewService(deps ServiceDeps) Service {
	return &service{
		store:      deps.Store,
		otp:        deps.OTP,
		users:      deps.Users,
		sink:       deps.Sink,
		dispatcher: deps.Dispatcher,
		cfg:        deps.Auth,
	}
}

func tempKey(email string) string {
	return tempUserPrefix + email
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) otpValidity() string {
	return fmt.Sprintf("%d minutes", int(s.cfg.OTPTTL.Minutes()))
}

// Register creates the temp record and both OTPs, then dispatches the two
// verification notifications fire-and-forget. A conflict with an existing
// permanent account leaves no temp/OTP state behind.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error) {
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	mobile := strings.TrimSpace(req.MobileNo)

	slog.Info("user registration attempt", "email", email)

	check, err := s.users.CheckConflict(ctx, email, mobile)
	if err != nil {
		return nil, err
	}
	if check.Exists {
		slog.Warn("registration conflict detected", "conflict_field", check.ConflictField, "email", email)
		return nil, &domain.ConflictError{Field: check.ConflictField}
	}

	// Idempotent cleanup for retried registrations: a stale session for this
	// email/mobile pair must not survive into the new one.
	if err := s.clearRegistrationData(ctx, email, mobile); err != nil {
		slog.Warn("failed to clear stale registration data", "email", email, "err", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	record := domain.TempUser{
		Name:      name,
		Email:     email,
		MobileNo:  mobile,
		Password:  string(hash),
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := s.putTempUser(ctx, &record); err != nil {
		return nil, err
	}

	issued := []otp.Issued{
		{Channel: domain.ChannelEmail, Identifier: email},
		{Channel: domain.ChannelMobile, Identifier: mobile},
	}
	if err := s.otp.IssueBatch(ctx, issued); err != nil {
		return nil, err
	}

	// Dispatch failure never fails the registration call; it surfaces only
	// through delivery telemetry.
	if err := s.sink.Dispatch(ctx,
		notification.VerificationEmail(email, name, issued[0].Code, s.otpValidity()),
		notification.VerificationSMS(mobile, issued[1].Code, s.otpValidity()),
	); err != nil {
		slog.Error("failed to dispatch verification notifications", "email", email, "err", err)
	}

	slog.Info("temp user registration successful", "email", email)
	return &domain.RegisterResult{
		Email:                email,
		MobileNo:             mobile,
		NextStep:             "verify_otp",
		VerificationRequired: []string{string(domain.ChannelEmail), string(domain.ChannelMobile)},
		OTPValidity:          s.otpValidity(),
	}, nil
}

// Verify validates one channel's OTP. When it completes the second channel it
// promotes the session to a permanent account and deletes the temp record.
func (s *service) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	email := normalizeEmail(req.Email)
	mobile := strings.TrimSpace(req.MobileNo)
	code := strings.TrimSpace(req.OTP)
	channel := req.Type

	if !channel.Valid() {
		return nil, fmt.Errorf("invalid verification type %q: %w", channel, domain.ErrBadRequest)
	}

	var (
		snapshot domain.TempUser
		attempt  error // invalid-code outcome that still commits the counter
	)

	err := s.store.Update(ctx, tempKey(email), func(current string, exists bool) (*redisstore.Mutation, error) {
		attempt = nil
		if !exists {
			return nil, fmt.Errorf("no session for %s: %w", email, domain.ErrSessionNotFound)
		}
		var record domain.TempUser
		if err := json.Unmarshal([]byte(current), &record); err != nil {
			return nil, fmt.Errorf("corrupt temp user record: %w", err)
		}
		if record.MobileNo != mobile {
			return nil, domain.ErrMobileMismatch
		}
		if record.Verified(channel) {
			return nil, fmt.Errorf("%s: %w", channel, domain.ErrAlreadyVerified)
		}
		if record.Attempts(channel) >= s.cfg.MaxOTPAttempts {
			return nil, fmt.Errorf("%s channel: %w", channel, domain.ErrAttemptsExceeded)
		}

		identifier := email
		if channel == domain.ChannelMobile {
			identifier = mobile
		}
		if err := s.otp.Validate(ctx, channel, identifier, code); err != nil {
			if errors.Is(err, domain.ErrInvalidCode) {
				// Commit the bumped counter, then surface the mismatch.
				record.SetAttempts(channel, record.Attempts(channel)+1)
				attempt = err
				return s.mutationFor(&record), nil
			}
			return nil, err
		}

		record.SetVerified(channel)
		record.SetAttempts(channel, 0)
		snapshot = record

		// The consumed OTP is deleted in the same transaction as the
		// verified-flag write, so a crash between the two cannot leave a
		// replay-usable code behind.
		m := s.mutationFor(&record)
		m.Extra = []redisstore.Op{{Kind: redisstore.OpDel, Key: otp.Key(channel, identifier)}}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	if attempt != nil {
		return nil, attempt
	}

	if snapshot.IsComplete() {
		return s.complete(ctx, &snapshot)
	}

	return &domain.VerifyResult{
		IsComplete:     false,
		VerifiedType:   channel,
		EmailVerified:  snapshot.EmailVerified,
		MobileVerified: snapshot.MobileVerified,
	}, nil
}

// complete performs the terminal transition: permanent-user creation followed
// by temp-record deletion. The user repository re-checks conflicts with a
// conditional insert, so even a duplicate completion attempt creates at most
// one account.
func (s *service) complete(ctx context.Context, record *domain.TempUser) (*domain.VerifyResult, error) {
	user, err := s.users.Create(ctx, domain.CreateUserData{
		Name:     record.Name,
		Email:    record.Email,
		MobileNo: record.MobileNo,
		Password: record.Password,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.Del(ctx, tempKey(record.Email)); err != nil {
		slog.Warn("failed to delete temp user after completion", "email", record.Email, "err", err)
	}

	if err := s.sink.Dispatch(ctx, notification.WelcomeEmail(record.Email, record.Name)); err != nil {
		slog.Error("failed to dispatch welcome email", "email", record.Email, "err", err)
	}

	slog.Info("registration completed", "email", record.Email, "user_id", user.UserID)
	return &domain.VerifyResult{
		IsComplete:     true,
		EmailVerified:  true,
		MobileVerified: true,
		User:           user,
	}, nil
}

// Resend issues fresh OTPs for every still-unverified channel, subject to the
// cooldown, and sends them through the synchronous path so the caller gets an
// immediate outcome.
func (s *service) Resend(ctx context.Context, req domain.ResendRequest) (*domain.ResendResult, error) {
	email := normalizeEmail(req.Email)
	mobile := strings.TrimSpace(req.MobileNo)

	var snapshot domain.TempUser
	err := s.store.Update(ctx, tempKey(email), func(current string, exists bool) (*redisstore.Mutation, error) {
		if !exists {
			return nil, fmt.Errorf("no session for %s: %w", email, domain.ErrSessionNotFound)
		}
		var record domain.TempUser
		if err := json.Unmarshal([]byte(current), &record); err != nil {
			return nil, fmt.Errorf("corrupt temp user record: %w", err)
		}
		if record.MobileNo != mobile {
			return nil, domain.ErrMobileMismatch
		}
		if record.IsComplete() {
			return nil, fmt.Errorf("user: %w", domain.ErrAlreadyVerified)
		}
		if record.LastOTPSent > 0 {
			elapsed := time.Since(time.UnixMilli(record.LastOTPSent))
			if elapsed < s.cfg.ResendCooldown {
				remaining := int((s.cfg.ResendCooldown - elapsed + time.Second - 1) / time.Second)
				return nil, &domain.CooldownError{Remaining: remaining}
			}
		}
		record.LastOTPSent = time.Now().UnixMilli()
		snapshot = record
		return s.mutationFor(&record), nil
	})
	if err != nil {
		return nil, err
	}

	// Fresh codes only for unverified channels; a verified channel's state is
	// never touched.
	var issued []otp.Issued
	var payloads []domain.NotificationPayload
	if !snapshot.EmailVerified {
		issued = append(issued, otp.Issued{Channel: domain.ChannelEmail, Identifier: email})
	}
	if !snapshot.MobileVerified {
		issued = append(issued, otp.Issued{Channel: domain.ChannelMobile, Identifier: mobile})
	}
	if err := s.otp.IssueBatch(ctx, issued); err != nil {
		return nil, err
	}
	for _, iss := range issued {
		switch iss.Channel {
		case domain.ChannelEmail:
			payloads = append(payloads, notification.VerificationEmail(email, snapshot.Name, iss.Code, s.otpValidity()))
		case domain.ChannelMobile:
			payloads = append(payloads, notification.VerificationSMS(mobile, iss.Code, s.otpValidity()))
		}
	}
	for _, res := range s.dispatcher.SendBulk(ctx, payloads) {
		if !res.Success {
			slog.Error("resend notification failed", "channel", res.Channel, "err", res.Err)
		}
	}

	return &domain.ResendResult{
		Email:          email,
		MobileNo:       mobile,
		OTPValidity:    s.otpValidity(),
		ResendCooldown: fmt.Sprintf("%d seconds", int(s.cfg.ResendCooldown.Seconds())),
	}, nil
}

// GetTempUser returns the in-progress session for email, or ErrSessionNotFound.
func (s *service) GetTempUser(ctx context.Context, email string) (*domain.TempUser, error) {
	raw, found, err := s.store.Get(ctx, tempKey(normalizeEmail(email)))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrSessionNotFound
	}
	var record domain.TempUser
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("corrupt temp user record: %w", err)
	}
	return &record, nil
}

func (s *service) putTempUser(ctx context.Context, record *domain.TempUser) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.store.SetWithTTL(ctx, tempKey(record.Email), string(raw), s.cfg.TempUserTTL)
}

func (s *service) mutationFor(record *domain.TempUser) *redisstore.Mutation {
	raw, _ := json.Marshal(record)
	return &redisstore.Mutation{Value: string(raw), TTL: s.cfg.TempUserTTL}
}

// clearRegistrationData removes any stale temp record and OTPs for the
// email/mobile pair in one pipelined round trip.
func (s *service) clearRegistrationData(ctx context.Context, email, mobile string) error {
	return s.store.Batch(ctx, []redisstore.Op{
		{Kind: redisstore.OpDel, Key: tempKey(email)},
		{Kind: redisstore.OpDel, Key: otp.Key(domain.ChannelEmail, email)},
		{Kind: redisstore.OpDel, Key: otp.Key(domain.ChannelMobile, mobile)},
	})
}
