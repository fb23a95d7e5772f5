package validation

import "github.com/andestrans/cargobot/internal/llm"

const (
	ToolValidateGoods   = "validate_goods"
	ToolValidateCity    = "validate_city"
	ToolIsInternational = "is_international_shipment"
	ToolIsMovingRequest = "is_moving_request"
	ToolIsParcelRequest = "is_parcel_request"
)

// GoodsTool validates the goods or service the user wants transported. The
// tool result is the rejection message for excluded cargo and true otherwise.
func GoodsTool() (llm.Tool, llm.ToolFunc) {
	return llm.Tool{
			Name: ToolValidateGoods,
			Description: "Call this when the user names goods or a service that may be excluded from the freight policy " +
				"(hazardous materials, live animals, precious metals, weapons, fuels, perishables, artwork, last-mile distribution). " +
				"Do not call it for ordinary transportable goods.",
			Parameters: llm.ObjectSchema(map[string]llm.Param{
				"goods_type": {Type: "string", Description: "The goods or service exactly as the user described them."},
			}, "goods_type"),
		}, func(args map[string]any) (any, error) {
			goods, _ := args["goods_type"].(string)
			if msg, ok := ValidateGoods(goods); !ok {
				return msg, nil
			}
			return true, nil
		}
}

// CityTool validates a Colombian origin or destination city against the
// coverage blacklist.
func CityTool() (llm.Tool, llm.ToolFunc) {
	return llm.Tool{
			Name: ToolValidateCity,
			Description: "Call this with every Colombian origin or destination city the user mentions, so it can be " +
				"checked against the coverage area. For countries other than Colombia use is_international_shipment instead.",
			Parameters: llm.ObjectSchema(map[string]llm.Param{
				"city": {Type: "string", Description: "The city exactly as the user wrote it."},
			}, "city"),
		}, func(args map[string]any) (any, error) {
			city, _ := args["city"].(string)
			if msg, ok := ValidateCity(city); !ok {
				return msg, nil
			}
			return true, nil
		}
}

// InternationalTool flags destinations outside the land coverage (Colombia,
// Venezuela, Ecuador, Peru).
func InternationalTool() (llm.Tool, llm.ToolFunc) {
	return llm.Tool{
			Name: ToolIsInternational,
			Description: "Call this for shipments crossing borders. Pass outside_coverage=true when the origin or " +
				"destination is outside Colombia, Venezuela, Ecuador and Peru; pass false for Venezuela, Ecuador or Peru.",
			Parameters: llm.ObjectSchema(map[string]llm.Param{
				"outside_coverage": {Type: "boolean", Description: "True when the route leaves the land coverage area."},
			}, "outside_coverage"),
		}, func(args map[string]any) (any, error) {
			outside, _ := args["outside_coverage"].(bool)
			if outside {
				return MsgInternationalLimit, nil
			}
			return true, nil
		}
}

// MovingTool flags household moving requests, which are not offered.
func MovingTool() (llm.Tool, llm.ToolFunc) {
	return llm.Tool{
			Name: ToolIsMovingRequest,
			Description: "Call this with is_moving=true when the request is a household move: furniture, appliances, " +
				"mattresses or other home goods. When unsure, keep asking instead of calling this.",
			Parameters: llm.ObjectSchema(map[string]llm.Param{
				"is_moving": {Type: "boolean"},
			}, "is_moving"),
		}, func(args map[string]any) (any, error) {
			if moving, _ := args["is_moving"].(bool); moving {
				return MsgMovingNotOffered, nil
			}
			return true, nil
		}
}

// ParcelTool flags small-parcel requests (explicit weight under 1000 kg),
// which are not offered.
func ParcelTool() (llm.Tool, llm.ToolFunc) {
	return llm.Tool{
			Name: ToolIsParcelRequest,
			Description: "Call this with is_parcel=true when the user explicitly states a weight under 1000 kg or " +
				"unambiguously describes a small parcel (an envelope, a small box). Do not assume parcel from box counts alone.",
			Parameters: llm.ObjectSchema(map[string]llm.Param{
				"is_parcel": {Type: "boolean"},
			}, "is_parcel"),
		}, func(args map[string]any) (any, error) {
			if parcel, _ := args["is_parcel"].(bool); parcel {
				return MsgParcelNotOffered, nil
			}
			return true, nil
		}
}

// RegisterAll adds every validation tool to a registry.
func RegisterAll(registry *llm.Registry) {
	tool, fn := GoodsTool()
	registry.MustRegister(tool, fn)
	tool, fn = CityTool()
	registry.MustRegister(tool, fn)
	tool, fn = InternationalTool()
	registry.MustRegister(tool, fn)
	tool, fn = MovingTool()
	registry.MustRegister(tool, fn)
	tool, fn = ParcelTool()
	registry.MustRegister(tool, fn)
}

// rejectionPriority orders terminal rejections when several validation tools
// fire in one model response.
var rejectionPriority = []string{
	ToolIsInternational,
	ToolValidateGoods,
	ToolValidateCity,
	ToolIsMovingRequest,
	ToolIsParcelRequest,
}

// TerminalRejection inspects a tool-loop result and returns the highest
// priority rejection message, if any validation tool rejected the request.
func TerminalRejection(result *llm.LoopResult) (message, tool string) {
	for _, name := range rejectionPriority {
		value, called := result.Results[name]
		if !called {
			continue
		}
		if msg, isReject := value.(string); isReject && msg != "" {
			return msg, name
		}
	}
	return "", ""
}
