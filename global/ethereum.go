package global

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/stelo/blockproof/chain"
	"github.com/stelo/blockproof/chain/readers"
	"github.com/stelo/blockproof/config"
)

var chainReader chain.Reader

// ChainReader lazily connects to the archive node configured via
// eth.url and wraps it in the caching decorator. It returns nil when
// the endpoint is not reachable.
func ChainReader() chain.Reader {
	if chainReader != nil {
		return chainReader
	}

	rpcReader, err := readers.NewRpcReader(Ctx(), viper.GetString(config.CEthApiUrl.Key))
	if err != nil {
		log.Warn().Err(err).Msg("Ethereum JSON-RPC endpoint not available")
		return nil
	}
	chainReader, err = readers.NewCachedReader(rpcReader)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create cached chain reader")
	}
	RegisterCleanupTask(func() {
		_ = chainReader.Close()
	})
	return chainReader
}
