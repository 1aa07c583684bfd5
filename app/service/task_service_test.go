package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"labeloo/app/apperr"
	"labeloo/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(tasks []model.Task) []uint {
	out := make([]uint, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestListOrderingPriorityThenNewest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.project(t, "order")

	t1 := env.task(t, p.ID, 5)
	time.Sleep(5 * time.Millisecond)
	t2 := env.task(t, p.ID, 1)
	time.Sleep(5 * time.Millisecond)
	t3 := env.task(t, p.ID, 5)

	groups, err := env.tasks.ListByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{t3.ID, t1.ID, t2.ID}, ids(groups.Unassigned))
	assert.Empty(t, groups.Annotating)
	assert.Empty(t, groups.Completed)

	pool, err := env.tasks.ListUnassigned(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{t3.ID, t1.ID, t2.ID}, ids(pool))
}

func TestAssignUnassignKeepInvariant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.project(t, "lifecycle")
	task := env.task(t, p.ID, 0)

	assigned, err := env.tasks.Assign(ctx, task.ID, env.user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusAnnotating, assigned.Status)
	require.NotNil(t, assigned.AssignedTo)
	assert.Equal(t, env.user.ID, *assigned.AssignedTo)

	mine, err := env.tasks.ListByAssignee(ctx, env.user.ID, &p.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{task.ID}, ids(mine))

	unassigned, err := env.tasks.Unassign(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusUnassigned, unassigned.Status)
	assert.Nil(t, unassigned.AssignedTo)

	reloaded, err := env.tasks.Find(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.CheckInvariant())
	assert.Nil(t, reloaded.AssignedTo)

	// 任务池中的任务没有负责人，不能直接完成
	_, err = env.tasks.Complete(ctx, task.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = env.tasks.Assign(ctx, task.ID, env.user.ID)
	require.NoError(t, err)
	done, err := env.tasks.Complete(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, done.Status)
}

func TestGetByIDNextTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.project(t, "next")
	other := env.project(t, "other")

	first := env.task(t, p.ID, 0)
	second := env.task(t, p.ID, 0)
	third := env.task(t, p.ID, 0)
	foreign := env.task(t, other.ID, 0)
	for _, task := range []*model.Task{first, third, foreign} {
		_, err := env.tasks.Assign(ctx, task.ID, env.user.ID)
		require.NoError(t, err)
	}

	detail, err := env.tasks.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.NextTaskID)
	assert.Equal(t, third.ID, *detail.NextTaskID)

	detail, err = env.tasks.GetByID(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.NextTaskID)
	assert.Equal(t, third.ID, *detail.NextTaskID)

	detail, err = env.tasks.GetByID(ctx, third.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.NextTaskID)

	_, err = env.tasks.GetByID(ctx, 9999)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateManyReturnsSuccessfulSubset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.project(t, "batch")
	a := env.task(t, p.ID, 0)
	b := env.task(t, p.ID, 0)

	priority := 7
	updated, err := env.tasks.UpdateMany(ctx, []uint{a.ID, 4242, b.ID}, TaskPatch{Priority: &priority})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{a.ID, b.ID}, ids(updated))
	for _, task := range updated {
		assert.Equal(t, 7, task.Priority)
	}

	// annotating 而没有负责人违反约束，整批都被跳过
	status := model.TaskStatusAnnotating
	updated, err = env.tasks.UpdateMany(ctx, []uint{a.ID, b.ID}, TaskPatch{Status: &status})
	require.NoError(t, err)
	assert.Empty(t, updated)

	_, err = env.tasks.UpdateMany(ctx, nil, TaskPatch{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestPatchAssigneeNormalizesStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.project(t, "patch")
	task := env.task(t, p.ID, 0)

	var patch TaskPatch
	require.NoError(t, json.Unmarshal([]byte(`{"assignedTo": 1}`), &patch))
	got, err := env.tasks.Update(ctx, task.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusAnnotating, got.Status)

	patch = TaskPatch{}
	require.NoError(t, json.Unmarshal([]byte(`{"assignedTo": null}`), &patch))
	assert.True(t, patch.AssignedTo.Set)
	got, err = env.tasks.Update(ctx, task.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusUnassigned, got.Status)
	assert.Nil(t, got.AssignedTo)

	patch = TaskPatch{}
	require.NoError(t, json.Unmarshal([]byte(`{"priority": 3}`), &patch))
	assert.False(t, patch.AssignedTo.Set)
}

func TestStatsAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.project(t, "stats")
	a := env.task(t, p.ID, 0)
	b := env.task(t, p.ID, 0)
	env.task(t, p.ID, 0)

	_, err := env.tasks.Assign(ctx, a.ID, env.user.ID)
	require.NoError(t, err)
	_, err = env.tasks.Assign(ctx, b.ID, env.user.ID)
	require.NoError(t, err)
	_, err = env.tasks.Complete(ctx, b.ID)
	require.NoError(t, err)

	stats, err := env.tasks.Stats(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStats{Total: 3, Unassigned: 1, Annotating: 1, Completed: 1}, *stats)

	_, err = env.annotations.Create(ctx, env.user.ID, CreateAnnotationInput{TaskID: b.ID, AnnotationData: json.RawMessage(`[]`)})
	require.NoError(t, err)
	require.NoError(t, env.tasks.Delete(ctx, b.ID))

	var count int64
	require.NoError(t, env.db.Model(&model.Annotation{}).Where("task_id = ?", b.ID).Count(&count).Error)
	assert.Zero(t, count)

	err = env.tasks.Delete(ctx, b.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.tasks.Create(context.Background(), CreateTaskInput{DataURL: "x"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	p := env.project(t, "v")
	task, err := env.tasks.Create(context.Background(), CreateTaskInput{ProjectID: p.ID, DataURL: "x.png"})
	require.NoError(t, err)
	assert.Equal(t, model.DataTypeImage, task.DataType)
	assert.Equal(t, model.TaskStatusUnassigned, task.Status)
}
