package mailer

import (
	"strings"
	"testing"
	"time"

	"rent_notifications/internal/models"
)

func TestDigestHTML(t *testing.T) {
	name := "Alice"
	phone := "+355692123456"
	amount := 12500.0
	cur := "ALL"

	items := []models.DueItem{
		{
			PropertyID:   "p1",
			PropertyName: "Vila 12",
			TenantName:   &name,
			TenantPhone:  &phone,
			RentAmount:   &amount,
			Currency:     &cur,
			DueDate:      time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			PropertyID:   "p2",
			PropertyName: "Apartamenti 3",
			DueDate:      time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
		},
	}

	html, err := DigestHTML("Qiraja duhet paguar sot", "Qiraja për këto prona duhet paguar SOT:", items)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"Qiraja duhet paguar sot",
		"Vila 12",
		"Alice",
		"+355692123456",
		"12 500 ALL",
		"29/08/2026",
		"Apartamenti 3",
		"N/A", // missing amount
	} {
		if !strings.Contains(html, want) {
			t.Errorf("digest missing %q", want)
		}
	}
}

func TestDigestHTMLEscapesContent(t *testing.T) {
	items := []models.DueItem{
		{PropertyName: "<script>alert(1)</script>", DueDate: time.Now()},
	}
	html, err := DigestHTML("t", "i", items)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Fatal("property name not escaped")
	}
}

func TestFormatThousands(t *testing.T) {
	cases := map[float64]string{
		500:     "500",
		12500:   "12 500",
		1234567: "1 234 567",
		99999.5: "99 999.5",
		-12500:  "-12 500",
	}
	for in, want := range cases {
		if got := formatThousands(in); got != want {
			t.Errorf("formatThousands(%v) = %q, want %q", in, got, want)
		}
	}
}
