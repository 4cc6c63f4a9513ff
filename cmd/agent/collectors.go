package agent

import (
	"github.com/spf13/cobra"
)

// initCollectorFlags 只暴露开关和连接参数；集群/网格/数据源列表只能写在配置文件里
func initCollectorFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.Bool("collectors.ontap.enabled", defaultCfg.Collectors.Ontap.Enabled, "启用存储集群采集器")
	f.Int("collectors.ontap.timeout", defaultCfg.Collectors.Ontap.Timeout, "存储集群采集超时（秒）")
	f.String("collectors.ontap.api_endpoint", defaultCfg.Collectors.Ontap.APIEndpoint, "存储集群 API 地址")
	f.String("collectors.ontap.username", defaultCfg.Collectors.Ontap.Username, "存储集群 API 用户")

	f.Bool("collectors.storagegrid.enabled", defaultCfg.Collectors.StorageGrid.Enabled, "启用对象存储网格采集器")
	f.Int("collectors.storagegrid.timeout", defaultCfg.Collectors.StorageGrid.Timeout, "网格采集超时（秒）")
	f.String("collectors.storagegrid.api_endpoint", defaultCfg.Collectors.StorageGrid.APIEndpoint, "网格 API 地址")

	f.Bool("collectors.generic.enabled", defaultCfg.Collectors.Generic.Enabled, "启用通用采集器")
	f.Int("collectors.generic.timeout", defaultCfg.Collectors.Generic.Timeout, "通用采集超时（秒）")
}
