// Package notify declares the outbound notification surface. Delivery engines
// (email, SMS) are external collaborators; auth flows treat dispatch as
// fire-and-forget and a failed notification never aborts the flow.
package notify

import (
	"context"
	"log"
)

// Notifier dispatches user-facing notifications out-of-band.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, token string)
	SendPasswordResetOTP(ctx context.Context, email, token, otp string)
	SendPasswordChanged(ctx context.Context, email string)
	SendRecoveryNotification(ctx context.Context, email, token string)
	SendRecoverySuccess(ctx context.Context, email string)
	SendInvitation(ctx context.Context, email, tenantName, token string)
}

// LogNotifier logs notifications instead of delivering them. Used in
// development and as the default when no transport is wired. Token and OTP
// values are not logged.
type LogNotifier struct{}

func (LogNotifier) SendVerificationEmail(_ context.Context, email, _ string) {
	log.Printf("notify: verification email queued for %s", email)
}

func (LogNotifier) SendPasswordResetOTP(_ context.Context, email, _, _ string) {
	log.Printf("notify: password reset OTP queued for %s", email)
}

func (LogNotifier) SendPasswordChanged(_ context.Context, email string) {
	log.Printf("notify: password changed notice queued for %s", email)
}

func (LogNotifier) SendRecoveryNotification(_ context.Context, email, _ string) {
	log.Printf("notify: account recovery notification queued for %s", email)
}

func (LogNotifier) SendRecoverySuccess(_ context.Context, email string) {
	log.Printf("notify: account recovery success notice queued for %s", email)
}

func (LogNotifier) SendInvitation(_ context.Context, email, tenantName, _ string) {
	log.Printf("notify: invitation to %s queued for %s", tenantName, email)
}
