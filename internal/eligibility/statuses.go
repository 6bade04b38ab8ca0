package eligibility

// Status codes of the RetailCRM deployment, grouped the way the CRM groups
// them.
var (
	statusGroupNew = []string{"new", "gotovo-k-soglasovaniiu", "agree-absence"}

	statusGroupNegotiation = []string{
		"client-confirmed", "ne-dozvonilis", "perezvonit-pozdnee", "klient-zhdet-foto-s-zakupki",
		"vizit-v-shourum", "ozhidaet-oplaty", "gotovim-kp", "soglasovanie-kp", "kp-gotovo-k-zashchite",
		"proekt-visiak", "soglasovano", "oplacheno", "proverka-nalichiia", "oplata-ne-proshla",
	}

	statusGroupComplete = []string{"complete"}

	statusGroupCancel = []string{
		"cancel-other", "no-call", "no-product", "already-buyed", "delyvery-did-not-suit", "prices-did-not-suit",
	}

	statusGroupProcurement = []string{"zakazat-nalichie", "ozhidaet-nalichie"}

	statusGroupAssembly = []string{
		"soglasovanie-dostavki", "send-to-assembling", "assembling", "peredano-biologu", "gotov-k-otpravke",
	}

	statusGroupDelivery = []string{"send-to-delivery", "delivering", "dostavlen"}
)

// DefaultAllowedStatuses spans the new, negotiation, complete and cancel
// groups.
func DefaultAllowedStatuses() []string {
	return concat(statusGroupNew, statusGroupNegotiation, statusGroupComplete, statusGroupCancel)
}

// DefaultExcludedStatuses spans the operational groups: procurement,
// assembly and delivery.
func DefaultExcludedStatuses() []string {
	return concat(statusGroupProcurement, statusGroupAssembly, statusGroupDelivery)
}

func concat(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
