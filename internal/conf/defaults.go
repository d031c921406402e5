package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults registers the default configuration values with viper.
func setDefaults() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "audioclassifier")
	viper.SetDefault("main.log.enabled", false)
	viper.SetDefault("main.log.path", "logs/audioclassifier.log")
	viper.SetDefault("main.log.maxsizemb", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxagedays", 28)

	viper.SetDefault("model.checkpointpath", "models/best_model.ckpt.gz")
	viper.SetDefault("model.topk", 3)
	viper.SetDefault("model.inferencetimeout", 60*time.Second)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.bodylimit", "32M")
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 120*time.Second)
	viper.SetDefault("server.cachettl", 5*time.Minute)

	viper.SetDefault("training.datasetdir", "data/ESC-50")
	viper.SetDefault("training.outputdir", "models")
	viper.SetDefault("training.epochs", 60)
	viper.SetDefault("training.batchsize", 8)
	viper.SetDefault("training.learningrate", 1e-3)
	viper.SetDefault("training.holdoutfold", 5)
}
