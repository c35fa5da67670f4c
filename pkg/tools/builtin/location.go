package builtin

import (
	"context"
	"fmt"

	"github.com/jarz/rentagent/pkg/scansan"
	"github.com/jarz/rentagent/pkg/tools"
)

type searchLocationParams struct {
	Query string `json:"query" jsonschema:"The location query to search for (postcode, area name, etc.)"`
}

type searchLocationOutput struct {
	Found    bool                      `json:"found"`
	Location *scansan.ResolvedLocation `json:"location,omitempty"`
}

func (t *Toolset) searchLocationTool() tools.Tool {
	return tools.Tool{
		Name:        "search_location",
		Description: "Search for a location to get its area code and basic information. Use this to validate or disambiguate a location before running a forecast.",
		Parameters:  tools.MustSchemaFor[searchLocationParams](),
		Handler: tools.NewHandler(func(ctx context.Context, params searchLocationParams) (*tools.ToolCallResult, error) {
			location, err := t.market.SearchAreaCodes(ctx, params.Query)
			if err != nil {
				return tools.ResultError(fmt.Sprintf("Error searching for location: %v", err)), nil
			}
			if location == nil {
				return tools.ResultError(fmt.Sprintf(
					"Could not find a location matching %q. Try a UK postcode like NW1, E14, or SW1.", params.Query)), nil
			}

			name := location.DisplayName
			if name == "" {
				name = location.AreaCode
			}
			return tools.ResultSuccess(
				fmt.Sprintf("Found location: %s", name),
				searchLocationOutput{Found: true, Location: location},
			), nil
		}),
		Annotations: tools.ToolAnnotations{Title: "Location search", ReadOnlyHint: true},
	}
}
