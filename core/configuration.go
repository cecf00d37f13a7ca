package core

import (
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/ebogdum/cloudbox/backends"
	"github.com/ebogdum/cloudbox/backends/httpfs"
	"github.com/ebogdum/cloudbox/backends/localfs"
	"github.com/ebogdum/cloudbox/backends/memory"
	"github.com/ebogdum/cloudbox/backends/s3"
)

// SupportedConfiguration selects a standard configuration preset
type SupportedConfiguration int

const (
	// LocalFS takes the root directory as a string
	LocalFS SupportedConfiguration = iota
	// S3 takes the bucket, then optionally the region and an endpoint
	S3
	// HTTPFS takes the base URL as a string or *url.URL
	HTTPFS
	// Memory optionally takes a *memory.Tree to share
	Memory
)

func (c SupportedConfiguration) String() string {
	switch c {
	case LocalFS:
		return localfs.Kind
	case S3:
		return s3.Kind
	case HTTPFS:
		return httpfs.Kind
	case Memory:
		return memory.Kind
	default:
		return fmt.Sprintf("configuration(%d)", int(c))
	}
}

const defaultS3Region = "us-east-1"

var validate = validator.New()

// GetCloudConfiguration builds the standard configuration of a provider. The
// HTTPFS preset trusts unsecure certificates, as self-hosted file servers
// commonly use self-signed ones.
func GetCloudConfiguration(kind SupportedConfiguration, params ...any) (backends.Configuration, error) {
	switch kind {
	case LocalFS:
		root, err := stringParam(params, 0, true)
		if err != nil {
			return nil, err
		}
		return &localfs.Configuration{RootPath: root}, nil

	case S3:
		bucket, err := stringParam(params, 0, true)
		if err != nil {
			return nil, err
		}
		region, err := stringParam(params, 1, false)
		if err != nil {
			return nil, err
		}
		if region == "" {
			region = defaultS3Region
		}
		endpoint, err := stringParam(params, 2, false)
		if err != nil {
			return nil, err
		}
		return &s3.Configuration{
			Bucket:         bucket,
			Region:         region,
			Endpoint:       endpoint,
			ForcePathStyle: endpoint != "",
		}, nil

	case HTTPFS:
		if len(params) == 0 {
			return nil, backends.NewError(backends.CodeInvalidParameters, "httpfs preset needs a base URL", nil)
		}
		var base string
		switch v := params[0].(type) {
		case string:
			base = v
		case *url.URL:
			if v != nil {
				base = v.String()
			}
		}
		if base == "" {
			return nil, backends.NewError(backends.CodeInvalidParameters,
				fmt.Sprintf("httpfs preset needs a base URL, got %T", params[0]), nil)
		}
		return &httpfs.Configuration{BaseURL: base, TrustUnsecure: true}, nil

	case Memory:
		cfg := &memory.Configuration{Name: "memory"}
		if len(params) > 0 {
			tree, ok := params[0].(*memory.Tree)
			if !ok {
				return nil, backends.NewError(backends.CodeInvalidParameters,
					fmt.Sprintf("memory preset takes a *memory.Tree, got %T", params[0]), nil)
			}
			cfg.Tree = tree
		}
		return cfg, nil

	default:
		return nil, backends.NewError(backends.CodeNoProviderFound, "no preset for "+kind.String(), nil)
	}
}

func stringParam(params []any, idx int, required bool) (string, error) {
	if idx >= len(params) {
		if required {
			return "", backends.NewError(backends.CodeInvalidParameters, fmt.Sprintf("parameter %d is required", idx), nil)
		}
		return "", nil
	}
	value, ok := params[idx].(string)
	if !ok || (required && value == "") {
		return "", backends.NewError(backends.CodeInvalidParameters,
			fmt.Sprintf("parameter %d must be a non-empty string, got %T", idx, params[idx]), nil)
	}
	return value, nil
}

// ConfigurationFromOptions decodes provider options, as found in the config
// file, into the configuration of kind and validates it.
func ConfigurationFromOptions(kind string, options map[string]any) (backends.Configuration, error) {
	var cfg backends.Configuration
	switch kind {
	case localfs.Kind:
		cfg = &localfs.Configuration{}
	case s3.Kind:
		cfg = &s3.Configuration{Region: defaultS3Region}
	case httpfs.Kind:
		cfg = &httpfs.Configuration{}
	case memory.Kind:
		cfg = &memory.Configuration{Name: "memory"}
	default:
		return nil, backends.NewError(backends.CodeNoProviderFound, fmt.Sprintf("unknown provider kind %q", kind), nil)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create options decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "invalid "+kind+" options", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, backends.NewError(backends.CodeInvalidParameters, "invalid "+kind+" configuration", err)
	}
	return cfg, nil
}
