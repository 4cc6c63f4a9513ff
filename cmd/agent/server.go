package agent

import (
	"github.com/spf13/cobra"
)

func initServerFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.Bool("server.enable", defaultCfg.Server.Enable, "-> Expose /metrics /health /status (启用运维端点)")
	f.String("server.addr", defaultCfg.Server.Addr, "-> HTTP listening address (HTTP监听地址)")
	f.Duration("server.read_timeout", defaultCfg.Server.ReadTimeout, "-> Read timeout duration (读取超时时间)")
	f.Duration("server.write_timeout", defaultCfg.Server.WriteTimeout, "-> Write timeout duration (写入超时时间)")
	f.Duration("server.idle_timeout", defaultCfg.Server.IdleTimeout, "-> Idle connection timeout duration (空闲连接超时时间)")
}

func initKafkaFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	prefix := "kafka."

	f.StringSlice(prefix+"brokers", defaultCfg.Kafka.Brokers, "-> Bootstrap brokers host:port (Kafka 地址)")
	f.String(prefix+"topic", defaultCfg.Kafka.Topic, "-> Destination topic (目标 topic)")
	f.String(prefix+"client_id", defaultCfg.Kafka.ClientID, "-> Producer client id")
	f.Duration(prefix+"linger", defaultCfg.Kafka.Linger, "-> Batch linger time (批量等待时间)")
	f.Int64(prefix+"batch_bytes", defaultCfg.Kafka.BatchBytes, "-> Max batch size in bytes (批量大小)")
	f.String(prefix+"compression", defaultCfg.Kafka.Compression, "-> Compression [none,gzip,snappy,lz4,zstd] | 压缩算法")
	f.String(prefix+"required_acks", defaultCfg.Kafka.RequiredAcks, "-> Required acks [all,one,none] | 确认级别")
	f.Duration(prefix+"flush_timeout", defaultCfg.Kafka.FlushTimeout, "-> Max wait for a batch to be acknowledged (flush 超时)")
	f.Int(prefix+"max_attempts", defaultCfg.Kafka.MaxAttempts, "-> Delivery attempts per batch (重试次数)")
}
