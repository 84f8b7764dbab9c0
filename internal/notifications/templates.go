package notifications

import (
	"bytes"
	"fmt"
	"text/template"
)

type orderMail struct {
	BuyerName string
	OrderID   string
	Total     string
	Reason    string
}

var (
	paidSubject = template.Must(template.New("paid_subject").Parse(`Pagamento confirmado - pedido {{.OrderID}}`))
	paidBody    = template.Must(template.New("paid_body").Parse(`Olá {{.BuyerName}},

Recebemos o pagamento de R$ {{.Total}} referente ao pedido {{.OrderID}}.
Você receberá novas atualizações assim que o pedido for enviado.
`))

	canceledSubject = template.Must(template.New("canceled_subject").Parse(`Pedido {{.OrderID}} cancelado`))
	canceledBody    = template.Must(template.New("canceled_body").Parse(`Olá {{.BuyerName}},

O pedido {{.OrderID}} foi cancelado{{if .Reason}} ({{.Reason}}){{end}}.
Se o pagamento ainda estiver pendente, você pode tentar novamente pela sua conta.
`))
)

func render(subject, body *template.Template, data orderMail) (string, string, error) {
	var s, b bytes.Buffer
	if err := subject.Execute(&s, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := body.Execute(&b, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return s.String(), b.String(), nil
}
