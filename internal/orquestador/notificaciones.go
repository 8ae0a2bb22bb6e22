package orquestador

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/wispcore/internal/observability/logger"
)

// Canales de notificación soportados.
const (
	CanalWhatsapp = "whatsapp"
	CanalPortal   = "portal"
	CanalEmail    = "email"
)

// Notificacion es una salida hacia el abonado por el canal indicado.
type Notificacion struct {
	Canal        string `json:"canal"`
	Destinatario string `json:"destinatario"`
	Asunto       string `json:"asunto,omitempty"`
	Mensaje      string `json:"mensaje"`
}

// SMTPSender manda correos vía SMTP.
type SMTPSender struct {
	Host string
	Port int
	From string
	User string
	Pass string
}

// Send envía el mensaje como texto plano.
func (s *SMTPSender) Send(to, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{ServerName: s.Host}

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// Notifier enruta notificaciones por canal: whatsapp delega al servicio de
// mensajería, email sale por SMTP y portal solo queda en la bitácora (el
// portal las lee de ahí en el sistema completo).
type Notifier struct {
	whatsapp *Client
	smtp     *SMTPSender
}

func NewNotifier(whatsapp *Client, smtp *SMTPSender) *Notifier {
	return &Notifier{whatsapp: whatsapp, smtp: smtp}
}

// Enviar despacha la notificación. Canal desconocido es error del caller.
func (n *Notifier) Enviar(ctx context.Context, nt Notificacion) error {
	log := logger.From(ctx).With(logger.Op("notificar"))
	switch nt.Canal {
	case CanalWhatsapp:
		_, err := n.whatsapp.postOK(ctx, "/whatsapp/send", nil, map[string]any{
			"telefono": nt.Destinatario,
			"mensaje":  nt.Mensaje,
		})
		return err
	case CanalEmail:
		if n.smtp == nil || n.smtp.Host == "" {
			return fmt.Errorf("smtp no configurado")
		}
		return n.smtp.Send(nt.Destinatario, nt.Asunto, nt.Mensaje)
	case CanalPortal:
		log.Info("notificación de portal registrada", logger.Component("portal"))
		return nil
	default:
		return fmt.Errorf("canal desconocido: %s", nt.Canal)
	}
}
