package service

import (
	"fmt"
	"strconv"
	"strings"

	"rent_notifications/internal/models"
)

// Message texts are Albanian; wording matches what tenants and owners of the
// dashboard already receive.

func tenantRentDueBody(it models.DueItem) string {
	amount := ""
	if it.HasAmount() {
		amount = fmt.Sprintf(" Shuma: %s %s.", formatAmount(*it.RentAmount), *it.Currency)
	}
	return fmt.Sprintf(
		"Përshëndetje %s, ju rikujtojmë se qiraja për pronën %s përfundon sot.%s Ju lutemi të kryeni pagesën. Faleminderit!",
		*it.TenantName, it.PropertyName, amount,
	)
}

func tenantExpiryBody(it models.DueItem) string {
	return fmt.Sprintf(
		"Përshëndetje %s, ju rikujtojmë se kontrata e qirasë për pronën %s përfundon së shpejti. Ju lutemi të na kontaktoni për rinovimin. Faleminderit!",
		*it.TenantName, it.PropertyName,
	)
}

// ownerConsolidatedBody renders the single message an owner receives for all
// properties due on the same day. Items keep resolver order; exactly one item
// uses the singular intro.
func ownerConsolidatedBody(items []models.DueItem) string {
	intro := ownerIntro(len(items), "qira përfundon sot", "qira përfundojnë sot")
	return intro + ownerItemList(items) + "\n\n- Sukaj Properties"
}

func ownerExpiryBody(items []models.DueItem) string {
	intro := ownerIntro(len(items), "kontratë përfundon së shpejti", "kontrata përfundojnë së shpejti")
	return intro + ownerItemList(items) + "\n\n- Sukaj Properties"
}

func ownerIntro(count int, singular, plural string) string {
	if count == 1 {
		return fmt.Sprintf("Kujtesë: 1 %s:\n\n", singular)
	}
	return fmt.Sprintf("Kujtesë: %d %s:\n\n", count, plural)
}

func ownerItemList(items []models.DueItem) string {
	parts := make([]string, 0, len(items))
	for i, it := range items {
		tenant := "Qiramarrës: N/A"
		if it.TenantName != nil && *it.TenantName != "" {
			tenant = "Qiramarrës: " + *it.TenantName
		}
		phone := ""
		if it.TenantPhone != nil && *it.TenantPhone != "" {
			phone = "\nTel: " + *it.TenantPhone
		}
		amount := ""
		if it.HasAmount() {
			amount = fmt.Sprintf("\nShuma: %s %s", formatAmount(*it.RentAmount), *it.Currency)
		}
		parts = append(parts, fmt.Sprintf("%d. %s\n%s%s%s", i+1, it.PropertyName, tenant, phone, amount))
	}
	return strings.Join(parts, "\n\n")
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
