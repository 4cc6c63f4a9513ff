package agent

import (
	"github.com/spf13/cobra"
)

func initLogFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	prefix := "log."

	f.String(prefix+"level", defaultCfg.Log.Level, "-> Log level [debug,info,warn,error] | 日志级别")
	f.String(prefix+"format", defaultCfg.Log.Format, "-> Console log format [console,json] | 控制台日志格式")
	f.String(prefix+"path", defaultCfg.Log.Path, "-> Directory of the rotated JSON log file | 日志目录")
	f.Int(prefix+"max_size", defaultCfg.Log.MaxSize, "-> Rotate when the file exceeds this size (MB) | 单文件最大MB")
	f.Int(prefix+"max_backup", defaultCfg.Log.MaxBackup, "-> Number of rotated files kept | 备份数量")
	f.Int(prefix+"max_age", defaultCfg.Log.MaxAge, "-> Days a rotated file is kept | 保存天数")
	f.Bool(prefix+"compress", defaultCfg.Log.Compress, "-> Compress rotated files | 是否压缩")
}
