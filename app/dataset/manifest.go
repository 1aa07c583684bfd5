package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	FormatYOLO = "yolo"
	FormatJSON = "json"

	ManifestFile = "data.yaml"
	ImagesDir    = "images"
	LabelsDir    = "labels"

	manifestVersion = "1.0"
)

// SplitConfig 训练/测试/验证集百分比，只写入清单，不实际拆分文件
type SplitConfig struct {
	Train      int `json:"train"`
	Test       int `json:"test"`
	Validation int `json:"validation"`
}

// DefaultSplit 默认 80/10/10
var DefaultSplit = SplitConfig{Train: 80, Test: 10, Validation: 10}

// Validate 百分比必须非负且合计不超过 100
func (s SplitConfig) Validate() error {
	if s.Train < 0 || s.Test < 0 || s.Validation < 0 {
		return errors.New("数据集划分比例不能为负数")
	}
	if s.Train+s.Test+s.Validation > 100 {
		return errors.New("数据集划分比例合计超过 100%")
	}
	return nil
}

// Counts 按比例计算各子集数量：train、test 向下取整，剩余归入 validation
func (s SplitConfig) Counts(total int) (train, val, test int) {
	train = total * s.Train / 100
	test = total * s.Test / 100
	val = total - train - test
	return train, val, test
}

// Manifest data.yaml 的内容，字段名是下游训练工具依赖的兼容面
type Manifest struct {
	Path        string         `yaml:"path"`
	Train       string         `yaml:"train"`
	Val         string         `yaml:"val"`
	Test        string         `yaml:"test"`
	TotalImages int            `yaml:"total_images"`
	TrainImages int            `yaml:"train_images"`
	ValImages   int            `yaml:"val_images"`
	TestImages  int            `yaml:"test_images"`
	SplitConfig ManifestSplit  `yaml:"split_config"`
	NC          int            `yaml:"nc"`
	Names       map[int]string `yaml:"names"`
	DatasetInfo DatasetInfo    `yaml:"dataset_info"`
	Labeloo     Provenance     `yaml:"labeloo"`
}

// ManifestSplit 以百分比字符串记录划分配置
type ManifestSplit struct {
	Train      string `yaml:"train"`
	Validation string `yaml:"validation"`
	Test       string `yaml:"test"`
}

type DatasetInfo struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	Format         string `yaml:"format"`
	AnnotationTool string `yaml:"annotation_tool"`
	ExportDate     string `yaml:"export_date"`
	ImagesFolder   string `yaml:"images_folder"`
	LabelsFolder   string `yaml:"labels_folder"`
}

type Provenance struct {
	Version      string `yaml:"version"`
	ProjectID    uint   `yaml:"project_id"`
	ExportFormat string `yaml:"export_format"`
}

// NewManifest 生成 YOLO 数据集清单。类别固定为单个默认类别 object
func NewManifest(projectID uint, name, description string, total int, split SplitConfig, exportedAt time.Time) Manifest {
	train, val, test := split.Counts(total)
	if description == "" {
		description = "Dataset exported from Labeloo"
	}
	return Manifest{
		Path:        ".",
		Train:       ImagesDir,
		Val:         ImagesDir,
		Test:        ImagesDir,
		TotalImages: total,
		TrainImages: train,
		ValImages:   val,
		TestImages:  test,
		SplitConfig: ManifestSplit{
			Train:      fmt.Sprintf("%d%%", split.Train),
			Validation: fmt.Sprintf("%d%%", split.Validation),
			Test:       fmt.Sprintf("%d%%", split.Test),
		},
		NC:    1,
		Names: map[int]string{0: "object"},
		DatasetInfo: DatasetInfo{
			Name:           name,
			Description:    description,
			Format:         "YOLO",
			AnnotationTool: "Labeloo",
			ExportDate:     exportedAt.UTC().Format(time.RFC3339),
			ImagesFolder:   ImagesDir,
			LabelsFolder:   LabelsDir,
		},
		Labeloo: Provenance{
			Version:      manifestVersion,
			ProjectID:    projectID,
			ExportFormat: FormatYOLO,
		},
	}
}

// WriteManifest 写入 <dir>/data.yaml
func WriteManifest(dir string, m Manifest) error {
	data, err := yaml.Marshal(&m)
	if err != nil {
		return errors.Wrap(err, "生成 data.yaml 失败")
	}
	header := fmt.Sprintf("# YOLO Dataset Configuration\n# Project: %s\n\n", m.DatasetInfo.Name)
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), append([]byte(header), data...), 0644); err != nil {
		return errors.Wrap(err, "写入 data.yaml 失败")
	}
	return nil
}
