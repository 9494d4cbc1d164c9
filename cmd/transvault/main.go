// Package main 启动应用程序
package main

import "github.com/yeisme/transvault/pkg/cmd"

//	@title			TransVault API
//	@version		1.0
//	@description	TransVault 管理转写工作区的用户存储：配额核算、分块存储、孤儿转写归档与存储层级迁移。

//	@license.name	MIT
//	@license.url	https://opensource.org/license/mit/

func main() {
	if err := cmd.Execute(); err != nil {
		panic(err)
	}
}
