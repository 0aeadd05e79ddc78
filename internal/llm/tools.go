package llm

import (
	"github.com/cloudwego/eino/schema"
	"github.com/getkin/kin-openapi/openapi3"
)

const StockPriceToolName = "get_stock_price"

// StockPriceArgs is the argument object of get_stock_price.
type StockPriceArgs struct {
	Ticker string `json:"ticker"`
}

// StockPriceTool declares get_stock_price with a strict single-field schema.
func StockPriceTool() *schema.ToolInfo {
	ticker := openapi3.NewStringSchema()
	ticker.Description = "The stock ticker symbol (e.g., AAPL for Apple)"

	params := openapi3.NewObjectSchema().
		WithProperty("ticker", ticker).
		WithoutAdditionalProperties()
	params.Required = []string{"ticker"}

	return &schema.ToolInfo{
		Name:        StockPriceToolName,
		Desc:        "Get the most recent closing price of a stock by its ticker symbol using Yahoo Finance data",
		ParamsOneOf: schema.NewParamsOneOfByOpenAPIV3(params),
	}
}

// DefaultTools is the tool set offered on every call.
func DefaultTools() []*schema.ToolInfo {
	return []*schema.ToolInfo{StockPriceTool()}
}
