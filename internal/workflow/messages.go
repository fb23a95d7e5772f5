package workflow

import "github.com/andestrans/cargobot/internal/llm"

// Shared tool names. Vertical-specific tools live next to their handlers.
const (
	ToolRequestHumanHelp       = "request_human_help"
	ToolNewInteractionRequired = "new_interaction_required"
)

// Special action tags the transport layer translates into its own side
// channel.
const (
	ActionSendSpecialList = "send_special_list_message"
	ActionSendVideo       = "send_video_message"
)

// Business copy. The exact wording is an operational concern; the state
// machines only care about which message goes with which transition.
const (
	MsgHumanHandoff = "I am connecting you with one of our advisors, who will get back to you shortly. Thank you for contacting Andes Trans."

	MsgConversationClosed = "Glad to help. If you need anything else, just write here again."

	MsgAskNewNeed = "Of course. Tell me what you need this time and I will take it from there."

	MsgLeadAskTaxID             = "To get you the right commercial agent, could you share your company's tax ID (NIT)?"
	MsgLeadAskFreightAgent      = "Since this is a personal shipment, our freight agency service may fit better. Are you interested in freight agency support?"
	MsgLeadIndividualDiscard    = "We currently work with registered companies only, so we will not be able to quote this shipment. Thank you for thinking of Andes Trans."
	MsgLeadAskRemainingInfo     = "Thanks. Now I need a few details: legal company name, contact name and position, email, the type of goods, and the origin and destination cities."
	MsgLeadAgentProspect        = "Thanks for the details. A commercial agent will be assigned to your account and will contact you shortly."
	MsgLeadEmailAddress         = "No problem. You can send the information to comercial@andestrans.co and our team will follow up from there."
	MsgLeadEmailSaved           = "Perfect, we have registered your email. Our commercial team will contact you there. Thank you for contacting Andes Trans."
	MsgLeadAgentAssignedFmt     = "Your account is handled by %s (%s, %s). They will follow up on your request shortly."

	MsgCustomerAskTaxID    = "Happy to help. Could you share your company's tax ID (NIT) so I can look up your account?"
	MsgCustomerAskNeed     = "Found it. What do you need today: shipment tracking, billing, a credit-hold question, or something else?"
	MsgCustomerTracking    = "You can track your shipments in real time at https://portal.andestrans.co/tracking with your account credentials. Your assigned agent can also send status on request."
	MsgCustomerBilling     = "For invoices and billing statements, write to facturacion@andestrans.co with your NIT and invoice number; the billing team answers within one business day."
	MsgCustomerCreditHold  = "Credit holds are handled by our portfolio team. Write to cartera@andestrans.co with your NIT and they will review your account status."

	MsgCarrierAskInfo      = "Great. To set that up I need your full name, the vehicle plate and the vehicle type."
	MsgCarrierVideoCaption = "Here is a short video with the exact steps."
	MsgCarrierVideoFollow  = "Did the video answer your question, or do you need help from our carrier desk?"
	MsgCarrierResolved     = "Glad it worked. Drive safe, and write here whenever you need us."

	MsgSupplierAskCompany = "Thanks. Please share your company name, a contact name, an email and a phone number so our purchasing team can evaluate your offer."
	MsgSupplierRegistered = "Your information was sent to our purchasing team. If your services match an open need, they will contact you directly."

	MsgCandidateResume = "Thank you. Please send your resume to talento@andestrans.co with the vacancy in the subject line; our recruiting team reviews applications weekly."

	MsgStaffAskDetails = "Understood. Give me your name, your area, and a short description of what you need."
	MsgStaffRegistered = "Your request was logged and routed to the right internal team. They will reach out through official channels."

	MsgSpecialListTitle       = "Welcome to Andes Trans"
	MsgSpecialListDescription = "To route you faster, pick the option that best describes you:"
)

// SpecialListOptions drives both the interactive list message and the numeric
// text fallback for web clients.
var SpecialListOptions = []string{
	"I need to ship freight",
	"I am already a customer",
	"I am a carrier / driver",
	"I want to offer services as a supplier",
	"I am applying for a job",
	"I work at Andes Trans",
}

func humanHelpTool() (llm.Tool, llm.ToolFunc) {
	return llm.Tool{
			Name:        ToolRequestHumanHelp,
			Description: "Call this when the user explicitly asks for human help or to talk to a person.",
			Parameters:  llm.ObjectSchema(nil),
		}, func(args map[string]any) (any, error) {
			return MsgHumanHandoff, nil
		}
}

func newInteractionTool() (llm.Tool, llm.ToolFunc) {
	return llm.Tool{
			Name:        ToolNewInteractionRequired,
			Description: "Call this when, after a previous request was resolved, the user states a new and different need.",
			Parameters:  llm.ObjectSchema(nil),
		}, func(args map[string]any) (any, error) {
			return true, nil
		}
}

// argString reads a string argument from a tool call arg map.
func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, _ := args[key].(string)
	return v
}

func argBool(args map[string]any, key string) bool {
	if args == nil {
		return false
	}
	v, _ := args[key].(bool)
	return v
}
