// Config loading for the strata CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/strata/internal/paths"
	"github.com/mesh-intelligence/strata/pkg/database"
	"github.com/mesh-intelligence/strata/pkg/model"
	"github.com/mesh-intelligence/strata/pkg/types"
)

const (
	cfgKeyBackend  = "backend"
	cfgKeyDataDir  = "data_dir"
	cfgKeyURI      = "uri"
	cfgKeyDatabase = "database"
	cfgKeyModels   = "models"

	defaultBackend = "json"
)

// modelConfig is one declared model in the config file.
type modelConfig struct {
	Name       string            `mapstructure:"name"`
	Plural     string            `mapstructure:"plural"`
	Dataset    string            `mapstructure:"dataset"`
	Attributes []attributeConfig `mapstructure:"attributes"`
}

type attributeConfig struct {
	Name       string `mapstructure:"name"`
	Type       string `mapstructure:"type"`
	Required   bool   `mapstructure:"required"`
	Searchable bool   `mapstructure:"searchable"`
}

// loadConfig reads the config file: the --config path when given, otherwise
// .strata.yaml in the working directory, otherwise ~/.strata/config.yaml.
// A missing config file is not an error; defaults apply.
func loadConfig() (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyBackend, defaultBackend)
	v.SetEnvPrefix("STRATA")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".strata")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".strata"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		if os.IsNotExist(err) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// initStorage loads config, connects the configured backend, and declares the
// configured models. Commands that touch no storage skip it.
func initStorage(cmd *cobra.Command, args []string) error {
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("set up logging: %w", err)
		}
		model.SetLogger(l)
		database.SetLogger(l)
	}

	switch cmd.Name() {
	case "version", "backends", "help":
		return nil
	}

	v, err := loadConfig()
	if err != nil {
		return err
	}

	dataDir, err := paths.ResolveDataDir(dataDirFlag, v.GetString(cfgKeyDataDir))
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	cfg := types.Config{
		DataDir:  dataDir,
		URI:      v.GetString(cfgKeyURI),
		Database: v.GetString(cfgKeyDatabase),
	}
	if _, err := database.Setup("default", v.GetString(cfgKeyBackend), cfg); err != nil {
		return err
	}

	if err := declareModels(v); err != nil {
		return err
	}
	model.Freeze()
	database.Freeze()
	return nil
}

// declareModels registers every model from the config file's models section.
func declareModels(v *viper.Viper) error {
	var models []modelConfig
	if err := v.UnmarshalKey(cfgKeyModels, &models); err != nil {
		return fmt.Errorf("parse models config: %w", err)
	}
	for _, mc := range models {
		attrs := make([]types.Attribute, 0, len(mc.Attributes))
		for _, ac := range mc.Attributes {
			attrs = append(attrs, types.Attribute{
				Name:       ac.Name,
				Type:       attrType(ac.Type),
				Required:   ac.Required,
				Searchable: ac.Searchable,
			})
		}
		_, err := model.Declare(model.Definition{
			Name:        mc.Name,
			PluralName:  mc.Plural,
			DatasetName: mc.Dataset,
			Attributes:  attrs,
		})
		if err != nil {
			return fmt.Errorf("declare model %q: %w", mc.Name, err)
		}
	}
	return nil
}

// attrType maps a config type token to its attribute type. Unknown tokens
// fall back to text.
func attrType(token string) types.AttrType {
	switch token {
	case "string":
		return types.String
	case "int", "integer":
		return types.Int
	case "float", "number":
		return types.Float
	case "bool", "boolean":
		return types.Bool
	case "time", "datetime":
		return types.Time
	case "date":
		return types.Date
	case "list":
		return types.List
	case "map":
		return types.Map
	default:
		return types.Text
	}
}

// closeStorage detaches and closes every configured backend connection.
func closeStorage() error {
	for _, name := range database.Names() {
		if err := database.Detach(name); err != nil {
			return err
		}
	}
	return nil
}

// typeFor resolves a declared model by name or dataset for a CLI argument.
func typeFor(name string) (*model.Type, error) {
	t := model.TypeFor(name)
	if t == nil {
		return nil, fmt.Errorf("unknown model %q (declare it in the config file's models section)", name)
	}
	return t, nil
}
