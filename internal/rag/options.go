package rag

import (
	"errors"

	"github.com/spf13/pflag"

	cacheopts "github.com/sidi-cnm/supnum-backend/pkg/options/cache"
	httpopts "github.com/sidi-cnm/supnum-backend/pkg/options/http"
	llmopts "github.com/sidi-cnm/supnum-backend/pkg/options/llm"
	logopts "github.com/sidi-cnm/supnum-backend/pkg/options/logger"
	metadbopts "github.com/sidi-cnm/supnum-backend/pkg/options/metadb"
	milvusopts "github.com/sidi-cnm/supnum-backend/pkg/options/milvus"
	ragopts "github.com/sidi-cnm/supnum-backend/pkg/options/rag"
)

// Options contains all knowledge base service options.
type Options struct {
	// HTTP contains HTTP server configuration.
	HTTP *httpopts.Options `json:"http" mapstructure:"http"`

	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Metadb contains relational metadata database configuration.
	Metadb *metadbopts.Options `json:"db" mapstructure:"db"`

	// Milvus contains Milvus vector database configuration.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// Embedding contains embedding provider configuration.
	Embedding *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Chat contains chat provider configuration.
	Chat *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// RAG contains indexing and retrieval configuration.
	RAG *ragopts.Options `json:"rag" mapstructure:"rag"`

	// Cache contains query cache configuration.
	Cache *cacheopts.Options `json:"cache" mapstructure:"cache"`
}

// NewOptions creates Options with default values.
func NewOptions() *Options {
	return &Options{
		HTTP:      httpopts.NewOptions(),
		Log:       logopts.NewOptions(),
		Metadb:    metadbopts.NewOptions(),
		Milvus:    milvusopts.NewOptions(),
		Embedding: llmopts.NewEmbeddingOptions(),
		Chat:      llmopts.NewChatOptions(),
		RAG:       ragopts.NewOptions(),
		Cache:     cacheopts.NewOptions(),
	}
}

// AddFlags registers all option flags on the flag set.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.HTTP.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.Metadb.AddFlags(fs)
	o.Milvus.AddFlags(fs)
	o.Embedding.AddFlags(fs, "embedding")
	o.Chat.AddFlags(fs, "chat")
	o.RAG.AddFlags(fs)
	o.Cache.AddFlags(fs)
}

// Complete fills in defaults that depend on other options.
func (o *Options) Complete() error {
	if err := o.Embedding.Complete(); err != nil {
		return err
	}
	if err := o.Chat.Complete(); err != nil {
		return err
	}
	if err := o.RAG.Complete(); err != nil {
		return err
	}
	return o.Cache.Complete()
}

// Validate checks the full option set for consistency.
func (o *Options) Validate() error {
	var errs []error

	if err := o.HTTP.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := o.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.Metadb.Validate()...)
	errs = append(errs, o.Milvus.Validate()...)
	errs = append(errs, o.Embedding.Validate()...)
	errs = append(errs, o.Chat.Validate()...)
	errs = append(errs, o.RAG.Validate()...)
	if err := o.Cache.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
