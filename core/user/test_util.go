package user

import (
	"context"

	"github.com/trezcool/nyumbani/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service whose password-reset email is sent synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	if conf != nil {
		secretKey = []byte(conf.SecretKey)
		passwordResetTimeoutDelta = conf.PasswordResetTimeoutDelta
	}
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
			conf:    conf,
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
