package mail

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/infra/logger"
)

// LogDispatcher records mail dispatch in the log instead of delivering it.
// The OTP is included so local environments can complete the flows.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(_ context.Context, to, template string, data map[string]any) error {
	subject, _, err := Render(template, data)
	if err != nil {
		return err
	}
	d.logger.Info("email dispatch logged",
		logger.Email(to),
		zap.String("template", template),
		zap.String("subject", subject),
		zap.Any("otp", data["otp"]),
	)
	return nil
}

var _ port.MailDispatcher = (*LogDispatcher)(nil)
