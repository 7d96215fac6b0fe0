package notification

import (
	"fmt"
	"sort"
	"strings"
)

// Template ids shipped with the default rule set.
const (
	TemplateDefault             = "default"
	TemplatePOAutoApproved      = "po_auto_approved"
	TemplatePOApprovalRequired  = "po_approval_required"
	TemplateGRNReceived         = "grn_received"
	TemplateBillMatchDiscrepant = "bill_match_discrepancy"
	TemplatePaymentProcessed    = "payment_processed"
	TemplateMSMEPaymentDue      = "msme_payment_due"
)

type Template struct {
	Subject string
	Content string
}

var templates = map[string]Template{
	TemplateDefault: {
		Subject: "{{sourceModule}} {{eventType}}",
		Content: "{{sourceModule}} record {{sourceRecordId}} emitted {{eventType}} (rule {{ruleName}}).",
	},
	TemplatePOAutoApproved: {
		Subject: "Purchase order {{number}} auto-approved",
		Content: "Purchase order {{number}} for {{finalAmount}} was approved automatically by rule {{ruleName}}.",
	},
	TemplatePOApprovalRequired: {
		Subject: "Approval required for purchase order {{number}}",
		Content: "Purchase order {{number}} for {{finalAmount}} needs approval.",
	},
	TemplateGRNReceived: {
		Subject: "Goods received against {{poNumber}}",
		Content: "GRN {{number}} was received against purchase order {{poNumber}}.",
	},
	TemplateBillMatchDiscrepant: {
		Subject: "Three-way match discrepancy on bill {{number}}",
		Content: "Bill {{number}} matched with confidence {{confidence}} and {{discrepancyCount}} discrepancies.",
	},
	TemplatePaymentProcessed: {
		Subject: "Payment {{number}} processed",
		Content: "Payment {{number}} of {{amount}} was applied to {{billCount}} bills.",
	},
	TemplateMSMEPaymentDue: {
		Subject: "MSME payment due for bill {{number}}",
		Content: "Bill {{number}} from an MSME vendor is due on {{dueDate}}.",
	},
}

// Lookup returns the template for id, falling back to the default.
func Lookup(id string) Template {
	if tmpl, ok := templates[strings.TrimSpace(id)]; ok {
		return tmpl
	}
	return templates[TemplateDefault]
}

// TemplateIDs lists the known template ids in sorted order.
func TemplateIDs() []string {
	ids := make([]string, 0, len(templates))
	for id := range templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render substitutes {{name}} placeholders with vars. Unknown placeholders
// render empty.
func Render(tmpl Template, vars map[string]any) (string, string) {
	return renderText(tmpl.Subject, vars), renderText(tmpl.Content, vars)
}

func renderText(text string, vars map[string]any) string {
	var b strings.Builder
	for {
		start := strings.Index(text, "{{")
		if start < 0 {
			b.WriteString(text)
			break
		}
		end := strings.Index(text[start:], "}}")
		if end < 0 {
			b.WriteString(text)
			break
		}
		b.WriteString(text[:start])
		name := strings.TrimSpace(text[start+2 : start+end])
		if value, ok := vars[name]; ok && value != nil {
			fmt.Fprint(&b, value)
		}
		text = text[start+end+2:]
	}
	return b.String()
}
