package cli

import (
	"encoding/json"
	"sort"

	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/odometry/odometry"
	"go.viam.com/odometry/odometry/alignment"
	"go.viam.com/odometry/odometry/initialization"
	"go.viam.com/odometry/odometry/localmap"
	"go.viam.com/odometry/utils"
)

// attributeSchemas maps "<strategy>.<mode>" to the schema of the mode attributes.
var attributeSchemas = map[string]*jsonschema.Schema{
	"initialization." + initialization.ModeConstantVelocity: jsonschema.Reflect(&initialization.ConstantVelocityConfig{}),
	"initialization." + initialization.ModeExternal:         jsonschema.Reflect(&initialization.ExternalConfig{}),
	"local_map." + localmap.ModeKDTree:                      jsonschema.Reflect(&localmap.KDTreeConfig{}),
	"local_map." + localmap.ModeProjective:                  jsonschema.Reflect(&localmap.ProjectiveConfig{}),
	"alignment." + alignment.ModePointToPlaneGaussNewton:    jsonschema.Reflect(&alignment.PointToPlaneConfig{}),
}

// SchemaAction is the corresponding action for 'schema'.
func SchemaAction(c *cli.Context) error {
	schema, err := configSchema(c.String(schemaFlagMode))
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}

func configSchema(mode string) (*jsonschema.Schema, error) {
	if mode == "" {
		return jsonschema.Reflect(&odometry.Config{}), nil
	}
	schema, ok := attributeSchemas[mode]
	if !ok {
		known := lo.Keys(attributeSchemas)
		sort.Strings(known)
		return nil, utils.NewUnknownModeError("schema", mode, known)
	}
	return schema, nil
}
