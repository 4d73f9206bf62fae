package mailer

import (
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"rent_notifications/internal/models"
)

var digestTmpl = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
</head>
<body style="font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; background-color: #f3f4f6; margin: 0; padding: 20px;">
  <div style="max-width: 800px; margin: 0 auto; background-color: white; border-radius: 12px; overflow: hidden;">
    <div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 30px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 28px;">Sukaj Prona</h1>
      <p style="color: rgba(255,255,255,0.9); margin: 10px 0 0 0; font-size: 16px;">{{.Title}}</p>
    </div>
    <div style="padding: 30px;">
      <p style="font-size: 16px; color: #374151; margin-bottom: 20px;">{{.Intro}}</p>
      <table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
        <thead>
          <tr style="background-color: #f9fafb; border-bottom: 2px solid #e5e7eb;">
            <th style="padding: 12px 16px; text-align: left; color: #6b7280;">Prona</th>
            <th style="padding: 12px 16px; text-align: left; color: #6b7280;">Qiraxhiu</th>
            <th style="padding: 12px 16px; text-align: left; color: #6b7280;">Telefoni</th>
            <th style="padding: 12px 16px; text-align: left; color: #6b7280;">Shuma</th>
            <th style="padding: 12px 16px; text-align: left; color: #6b7280;">Data</th>
          </tr>
        </thead>
        <tbody>
          {{range .Rows}}
          <tr style="border-bottom: 1px solid #e5e7eb;">
            <td style="padding: 12px 16px; font-weight: 500;">{{.Property}}</td>
            <td style="padding: 12px 16px;">{{.Tenant}}</td>
            <td style="padding: 12px 16px;">{{.Phone}}</td>
            <td style="padding: 12px 16px; font-weight: 600; color: #059669;">{{.Amount}}</td>
            <td style="padding: 12px 16px;">{{.Date}}</td>
          </tr>
          {{end}}
        </tbody>
      </table>
    </div>
  </div>
</body>
</html>`))

type digestRow struct {
	Property string
	Tenant   string
	Phone    string
	Amount   string
	Date     string
}

type digestData struct {
	Title string
	Intro string
	Rows  []digestRow
}

// DigestHTML renders the owner reminder table for one reminder window.
func DigestHTML(title, intro string, items []models.DueItem) (string, error) {
	data := digestData{Title: title, Intro: intro, Rows: make([]digestRow, 0, len(items))}

	for _, it := range items {
		row := digestRow{
			Property: it.PropertyName,
			Tenant:   "-",
			Phone:    "-",
			Amount:   "N/A",
			Date:     it.DueDate.UTC().Format("02/01/2006"),
		}
		if it.TenantName != nil && *it.TenantName != "" {
			row.Tenant = *it.TenantName
		}
		if it.TenantPhone != nil && *it.TenantPhone != "" {
			row.Phone = *it.TenantPhone
		}
		if it.HasAmount() {
			row.Amount = fmt.Sprintf("%s %s", formatThousands(*it.RentAmount), *it.Currency)
		}
		data.Rows = append(data.Rows, row)
	}

	var sb strings.Builder
	if err := digestTmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return sb.String(), nil
}

// formatThousands renders 12500 as "12 500", the format the dashboard uses.
func formatThousands(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)

	intPart := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}

	var out []byte
	for i, c := range []byte(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ' ')
		}
		out = append(out, c)
	}

	res := string(out) + frac
	if neg {
		res = "-" + res
	}
	return res
}
