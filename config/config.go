package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	AI struct {
		Gateway     string `yaml:"gateway"` // OpenAI 兼容网关地址
		APIKey      string `yaml:"api_key"`
		ScriptModel string `yaml:"script_model"` // 脚本生成模型
		ImageModel  string `yaml:"image_model"`  // 生图模型
		VoiceAPI    string `yaml:"voice_api"`    // TTS 服务地址
		Voice       string `yaml:"voice"`        // 默认音色
	} `yaml:"ai"`
	Render struct {
		Backend string `yaml:"backend"` // composition | timeline
		API     string `yaml:"api"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"render"`
	Credits struct {
		VideoCost int `yaml:"video_cost"` // 每次生成扣除的积分
	} `yaml:"credits"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
		Domain    string `yaml:"domain"`
	} `yaml:"minio"`
}

var AppConfig *Config

func InitConfig() {
	f, err := os.Open("config/config.yaml")
	if err != nil {
		log.Fatalf("配置文件读取失败: %v", err)
	}
	defer f.Close()
	decoder := yaml.NewDecoder(f)
	AppConfig = &Config{}
	if err := decoder.Decode(AppConfig); err != nil {
		log.Fatalf("配置文件解析失败: %v", err)
	}
	// 默认值
	if AppConfig.Credits.VideoCost <= 0 {
		AppConfig.Credits.VideoCost = 10
	}
	if AppConfig.Render.Backend == "" {
		AppConfig.Render.Backend = "composition"
	}
}
