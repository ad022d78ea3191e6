package user

import (
	"time"

	"github.com/pixelforegllc/quantummftools-dash/core"
)

// ServiceMock is a Service whose password reset tokens can be generated and time-travelled from tests.
type ServiceMock struct {
	service
}

func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) *ServiceMock {
	return &ServiceMock{
		service: service{
			repo:     repo,
			mailSvc:  mailSvc,
			tokenGen: newTokenGenerator(conf.SecretKey, conf.Server.PasswordResetTimeoutDelta),
		},
	}
}

// MakeToken generates a password reset token for usr.
func (svc *ServiceMock) MakeToken(usr User) string {
	return svc.tokenGen.makeToken(usr)
}

// SetNowFunc replaces the clock of the token generator. nil resets it.
func (svc *ServiceMock) SetNowFunc(f func() time.Time) {
	if f == nil {
		f = time.Now
	}
	svc.tokenGen.nowFunc = f
}
